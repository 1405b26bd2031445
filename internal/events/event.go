// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

// =============================================================================
// Coaching Domain Events
// =============================================================================

// PipelineCompleted is published after a pipeline run produced its outputs.
type PipelineCompleted struct {
	BaseEvent
	RunID           uuid.UUID     `json:"runId"`
	Goal            string        `json:"goal"`
	Rows            int           `json:"rows"`
	Recommendations int           `json:"recommendations"`
	Targets         int           `json:"targets"`
	TargetingSource string        `json:"targetingSource"`
	Elapsed         time.Duration `json:"elapsed"`
}

func (e PipelineCompleted) EventName() string { return "coaching.pipeline.completed" }

// NotificationsBuilt is published when a batch of agent notifications was
// stored. The box exporter mirrors them to object storage.
type NotificationsBuilt struct {
	BaseEvent
	Notifications []domain.Notification `json:"notifications"`
}

func (e NotificationsBuilt) EventName() string { return "coaching.notifications.built" }

// SessionStarted is published when an approval session enters review.
type SessionStarted struct {
	BaseEvent
	SessionID  uuid.UUID `json:"sessionId"`
	OperatorID string    `json:"operatorId"`
	Targets    int       `json:"targets"`
}

func (e SessionStarted) EventName() string { return "coaching.session.started" }

// SessionDispatched is published once a session reached its terminal state.
type SessionDispatched struct {
	BaseEvent
	SessionID  uuid.UUID               `json:"sessionId"`
	OperatorID string                  `json:"operatorId"`
	Goal       string                  `json:"goal"`
	Action     string                  `json:"action"`
	Results    []domain.DispatchResult `json:"results"`
}

func (e SessionDispatched) EventName() string { return "coaching.session.dispatched" }

// Failed counts unsuccessful sends.
func (e SessionDispatched) Failed() int {
	n := 0
	for _, r := range e.Results {
		if !r.Success {
			n++
		}
	}
	return n
}
