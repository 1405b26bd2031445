package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"dealer_coach_backend/internal/coaching/agent"
	"dealer_coach_backend/internal/coaching/dispatch"
	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/events"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/metrics"

	"github.com/google/uuid"
)

// Composer writes a message for a set of recommendations.
type Composer interface {
	Compose(ctx context.Context, in agent.ComposeInput) (string, error)
}

// Sender delivers a batch of messages and reports one result per item.
type Sender interface {
	Run(ctx context.Context, items []dispatch.Item) []domain.DispatchResult
}

// Deps are the collaborators of a Workflow.
type Deps struct {
	Composer   Composer
	Sender     Sender
	Classifier agent.Classifier
	Store      Store
	Bus        events.Bus
	Log        *logger.Logger
	Now        func() time.Time
}

// Workflow drives sessions through the transition table.
type Workflow struct {
	composer   Composer
	sender     Sender
	classifier agent.Classifier
	store      Store
	bus        events.Bus
	log        *logger.Logger
	now        func() time.Time

	locks sync.Map
}

// NewWorkflow creates a workflow.
func NewWorkflow(d Deps) *Workflow {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.Classifier == nil {
		d.Classifier = agent.RiskBandClassifier{Low: 0.66, Medium: 0.33}
	}
	return &Workflow{
		composer:   d.Composer,
		sender:     d.Sender,
		classifier: d.Classifier,
		store:      d.Store,
		bus:        d.Bus,
		log:        d.Log,
		now:        d.Now,
	}
}

// StartInput is everything a review needs from a pipeline run.
type StartInput struct {
	OperatorID      string
	Goal            string
	HorizonDays     int
	Recommendations []domain.Recommendation
	Targets         []domain.TargetDecision
	Preview         []domain.KPIRow
	Style           domain.Style
}

// Outcome is the result of an action.
type Outcome struct {
	Session *Session                `json:"session"`
	Results []domain.DispatchResult `json:"results,omitempty"`
}

// Start composes the first draft and opens the session in REVIEW. Nothing is
// stored when composition fails.
func (w *Workflow) Start(ctx context.Context, in StartInput) (*Session, error) {
	if strings.TrimSpace(in.OperatorID) == "" {
		return nil, apperr.Forbidden("operator id is required")
	}
	if len(in.Targets) == 0 {
		return nil, domain.ErrNoTargets
	}
	style := in.Style
	if style == "" {
		style = domain.StyleProfessional
	}

	now := w.now().UTC()
	s := &Session{
		ID:              uuid.NewString(),
		OperatorID:      in.OperatorID,
		Goal:            in.Goal,
		HorizonDays:     in.HorizonDays,
		Recommendations: in.Recommendations,
		Targets:         in.Targets,
		Preview:         in.Preview,
		Style:           style,
		State:           StateDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	draft, err := w.composer.Compose(ctx, agent.ComposeInput{
		Goal:            s.Goal,
		Recommendations: s.Recommendations,
		Preview:         s.Preview,
		Style:           s.Style,
	})
	if err != nil {
		return nil, err
	}
	s.Draft = draft
	if err := s.advance(actionReady, now); err != nil {
		return nil, apperr.Internal(err.Error())
	}
	if err := w.store.Save(ctx, s); err != nil {
		return nil, err
	}

	metrics.SessionOpened()
	w.publish(ctx, events.SessionStarted{
		BaseEvent:  events.NewBaseEventAt(now),
		SessionID:  uuid.MustParse(s.ID),
		OperatorID: s.OperatorID,
		Targets:    len(s.Targets),
	})
	return s, nil
}

// Get returns a session owned by operatorID.
func (w *Workflow) Get(ctx context.Context, id, operatorID string) (*Session, error) {
	s, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.OperatorID != operatorID {
		return nil, domain.ErrSessionForbidden
	}
	return s, nil
}

// Apply runs one operator action. Rejected input leaves the stored session
// exactly as it was. Terminal actions remove the session from the store; a
// session that could not be removed stays stored as DISPATCHED.
func (w *Workflow) Apply(ctx context.Context, id, operatorID string, action Action) (*Outcome, error) {
	unlock := w.lock(id)
	defer unlock()

	stored, err := w.Get(ctx, id, operatorID)
	if err != nil {
		return nil, err
	}
	if stored.State.Terminal() {
		return nil, domain.ErrSessionTerminal
	}
	if _, ok := Next(stored.State, action.Type); !ok || action.Type == actionReady {
		return nil, apperr.InvalidOperatorInput(fmt.Sprintf("unknown action %q", action.Type)).
			WithDetails(map[string]any{"allowed": OperatorActions, "state": stored.State})
	}

	s := stored.clone()
	switch action.Type {
	case ActionEdit:
		return w.edit(ctx, s, action)
	case ActionRegenerate:
		return w.regenerate(ctx, s, action)
	case ActionApprove:
		return w.approve(ctx, s)
	case ActionGroupSend:
		return w.groupSend(ctx, s, action)
	}
	return nil, apperr.InvalidOperatorInput(fmt.Sprintf("unknown action %q", action.Type))
}

func (w *Workflow) edit(ctx context.Context, s *Session, action Action) (*Outcome, error) {
	if strings.TrimSpace(action.Text) == "" {
		return nil, apperr.InvalidOperatorInput("edit needs a non-empty text")
	}
	s.Draft = action.Text
	return w.stay(ctx, s, ActionEdit)
}

func (w *Workflow) regenerate(ctx context.Context, s *Session, action Action) (*Outcome, error) {
	style := s.Style
	if strings.TrimSpace(action.Style) != "" {
		parsed, err := domain.ParseStyle(action.Style)
		if err != nil {
			return nil, apperr.InvalidOperatorInput(err.Error())
		}
		style = parsed
	}
	draft, err := w.composer.Compose(ctx, agent.ComposeInput{
		Goal:            s.Goal,
		Recommendations: s.Recommendations,
		Preview:         s.Preview,
		Style:           style,
	})
	if err != nil {
		return nil, err
	}
	s.Draft = draft
	s.Style = style
	return w.stay(ctx, s, ActionRegenerate)
}

func (w *Workflow) stay(ctx context.Context, s *Session, a ActionType) (*Outcome, error) {
	if err := s.advance(a, w.now().UTC()); err != nil {
		return nil, apperr.Internal(err.Error())
	}
	if err := w.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return &Outcome{Session: s}, nil
}

// approve sends the current draft once to every target.
func (w *Workflow) approve(ctx context.Context, s *Session) (*Outcome, error) {
	items := make([]dispatch.Item, 0, len(s.Targets))
	for _, t := range s.Targets {
		items = append(items, dispatch.Item{Recipient: t.AgentID, Text: s.Draft})
	}
	return w.finish(ctx, s, ActionApprove, items)
}

// groupSend composes one message per performance level and sends it to the
// members of that level. Every message is composed before anything is sent.
func (w *Workflow) groupSend(ctx context.Context, s *Session, action Action) (*Outcome, error) {
	levels := domain.Levels
	if len(action.Levels) > 0 {
		levels = make([]domain.PerformanceLevel, 0, len(action.Levels))
		for _, l := range action.Levels {
			parsed, err := domain.ParseLevel(string(l))
			if err != nil || parsed == "" {
				return nil, apperr.InvalidOperatorInput(fmt.Sprintf("unknown performance level %q", l))
			}
			levels = append(levels, parsed)
		}
	}

	groups, err := w.classifier.Classify(ctx, agent.ClassifyInput{
		Goal:        s.Goal,
		HorizonDays: s.HorizonDays,
		Targets:     s.Targets,
		Rows:        s.Preview,
	})
	if err != nil {
		return nil, err
	}

	s.GroupMessages = make(map[domain.PerformanceLevel]string)
	s.Groups = make(map[domain.PerformanceLevel][]string)
	var items []dispatch.Item
	seen := make(map[domain.PerformanceLevel]bool, len(levels))
	for _, level := range levels {
		if seen[level] {
			continue
		}
		seen[level] = true
		members := groups.Members(level)
		if len(members) == 0 {
			continue
		}
		msg, err := w.composer.Compose(ctx, agent.ComposeInput{
			Goal:             s.Goal,
			Recommendations:  s.Recommendations,
			Preview:          s.Preview,
			Style:            s.Style,
			PerformanceLevel: level,
		})
		if err != nil {
			return nil, err
		}
		s.GroupMessages[level] = msg
		for _, m := range members {
			s.Groups[level] = append(s.Groups[level], m.AgentID)
			items = append(items, dispatch.Item{Recipient: m.AgentID, Level: level, Text: msg})
		}
	}
	if len(items) == 0 {
		return nil, apperr.InvalidOperatorInput("no selected agent belongs to the chosen performance levels")
	}
	return w.finish(ctx, s, ActionGroupSend, items)
}

func (w *Workflow) finish(ctx context.Context, s *Session, a ActionType, items []dispatch.Item) (*Outcome, error) {
	if w.sender == nil {
		return nil, domain.ErrDispatchDisabled
	}
	now := w.now().UTC()
	if err := s.advance(a, now); err != nil {
		return nil, apperr.Internal(err.Error())
	}
	// The terminal state is stored before anything is sent, so a retry can
	// never dispatch the same session twice.
	if err := w.store.Save(ctx, s); err != nil {
		return nil, err
	}

	results := w.sender.Run(ctx, items)
	s.Results = results
	if err := w.store.Delete(ctx, s.ID); err != nil {
		w.log.WithContext(ctx).Error("failed to discard dispatched session", "session_id", s.ID, "error", err)
		if err := w.store.Save(ctx, s); err != nil {
			w.log.WithContext(ctx).Error("failed to record dispatch results", "session_id", s.ID, "error", err)
		}
	}
	w.locks.Delete(s.ID)
	metrics.SessionClosed()

	w.publish(ctx, events.SessionDispatched{
		BaseEvent:  events.NewBaseEventAt(now),
		SessionID:  uuid.MustParse(s.ID),
		OperatorID: s.OperatorID,
		Goal:       s.Goal,
		Action:     string(a),
		Results:    results,
	})
	return &Outcome{Session: s, Results: results}, nil
}

func (w *Workflow) publish(ctx context.Context, e events.Event) {
	if w.bus != nil {
		w.bus.Publish(ctx, e)
	}
}

// lock serialises actions on one session.
func (w *Workflow) lock(id string) func() {
	v, _ := w.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return func() {
		mu.Unlock()
	}
}
