// Package approval implements the human review loop that gates every
// outbound coaching message.
package approval

import (
	"fmt"
	"strings"
	"time"

	"dealer_coach_backend/internal/coaching/domain"
)

// State of a session.
type State string

const (
	StateDraft      State = "DRAFT"
	StateReview     State = "REVIEW"
	StateDispatched State = "DISPATCHED"
)

// ActionType names an operator action.
type ActionType string

const (
	ActionApprove    ActionType = "approve"
	ActionRegenerate ActionType = "regenerate"
	ActionEdit       ActionType = "edit"
	ActionGroupSend  ActionType = "group_send"

	// actionReady is the internal step from DRAFT to REVIEW once the first
	// draft exists.
	actionReady ActionType = "ready"
)

// OperatorActions lists what an operator may send.
var OperatorActions = []ActionType{ActionApprove, ActionRegenerate, ActionEdit, ActionGroupSend}

// transitions is the contract of the workflow. Anything missing is rejected.
var transitions = map[State]map[ActionType]State{
	StateDraft: {
		actionReady: StateReview,
	},
	StateReview: {
		ActionRegenerate: StateReview,
		ActionEdit:       StateReview,
		ActionApprove:    StateDispatched,
		ActionGroupSend:  StateDispatched,
	},
}

// Next returns the state reached by applying a in s.
func Next(s State, a ActionType) (State, bool) {
	next, ok := transitions[s][a]
	return next, ok
}

// Terminal reports whether s accepts no action at all.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// ParseAction normalises an action name. Unknown names are returned as-is so
// the workflow can reject them against the table.
func ParseAction(s string) ActionType {
	return ActionType(strings.ToLower(strings.TrimSpace(s)))
}

// Action is one operator input.
type Action struct {
	Type   ActionType                `json:"type"`
	Style  string                    `json:"style,omitempty"`
	Text   string                    `json:"text,omitempty"`
	Levels []domain.PerformanceLevel `json:"levels,omitempty"`
}

// Session is the mutable state of one review. It is owned by a single
// operator.
type Session struct {
	ID              string                               `json:"id"`
	OperatorID      string                               `json:"operator_id"`
	Goal            string                               `json:"goal"`
	HorizonDays     int                                  `json:"horizon_days"`
	Recommendations []domain.Recommendation              `json:"recommendations"`
	Targets         []domain.TargetDecision              `json:"targets"`
	Preview         []domain.KPIRow                      `json:"preview"`
	Draft           string                               `json:"draft"`
	Style           domain.Style                         `json:"style"`
	State           State                                `json:"state"`
	GroupMessages   map[domain.PerformanceLevel]string   `json:"group_messages,omitempty"`
	Groups          map[domain.PerformanceLevel][]string `json:"groups,omitempty"`
	Results         []domain.DispatchResult              `json:"results,omitempty"`
	CreatedAt       time.Time                            `json:"created_at"`
	UpdatedAt       time.Time                            `json:"updated_at"`
}

func (s *Session) advance(a ActionType, now time.Time) error {
	next, ok := Next(s.State, a)
	if !ok {
		return fmt.Errorf("action %q is not allowed in state %s", a, s.State)
	}
	s.State = next
	s.UpdatedAt = now
	return nil
}

// clone copies the fields an action may change, so a failed action leaves
// the stored session untouched.
func (s *Session) clone() *Session {
	c := *s
	if s.GroupMessages != nil {
		c.GroupMessages = make(map[domain.PerformanceLevel]string, len(s.GroupMessages))
		for k, v := range s.GroupMessages {
			c.GroupMessages[k] = v
		}
	}
	if s.Groups != nil {
		c.Groups = make(map[domain.PerformanceLevel][]string, len(s.Groups))
		for k, v := range s.Groups {
			c.Groups[k] = append([]string(nil), v...)
		}
	}
	c.Results = append([]domain.DispatchResult(nil), s.Results...)
	return &c
}
