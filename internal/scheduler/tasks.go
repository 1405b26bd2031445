package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskCoachingSnapshot = "coaching.snapshot"

// SnapshotPayload configures one snapshot run. Zero values use the coaching
// defaults.
type SnapshotPayload struct {
	Goal        string   `json:"goal"`
	HorizonDays int      `json:"horizonDays,omitempty"`
	Region      string   `json:"region,omitempty"`
	WindowDays  int      `json:"windowDays,omitempty"`
	TopN        int      `json:"topN,omitempty"`
	MinRisk     *float64 `json:"minRisk,omitempty"`
}

// DefaultSnapshotGoal is used by the periodic snapshot.
const DefaultSnapshotGoal = "Improve lead conversion and revenue trend over the next 30 days"

func NewCoachingSnapshotTask(payload SnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCoachingSnapshot, data), nil
}

func ParseCoachingSnapshotPayload(task *asynq.Task) (SnapshotPayload, error) {
	var payload SnapshotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SnapshotPayload{}, err
	}
	if payload.Goal == "" {
		payload.Goal = DefaultSnapshotGoal
	}
	return payload, nil
}
