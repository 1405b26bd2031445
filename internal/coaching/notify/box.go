package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"dealer_coach_backend/internal/adapters/storage"
	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/events"
	"dealer_coach_backend/platform/logger"
)

// BoxIndexKey is the object holding the latest batch.
const BoxIndexKey = "notifications.json"

// BoxExporter writes notification batches to a bucket: the whole batch under
// BoxIndexKey and one file per agent under dealers/.
type BoxExporter struct {
	store  storage.ObjectStore
	bucket string
	log    *logger.Logger
}

// NewBoxExporter creates an exporter.
func NewBoxExporter(store storage.ObjectStore, bucket string, log *logger.Logger) *BoxExporter {
	return &BoxExporter{store: store, bucket: bucket, log: log}
}

// Subscribe wires the exporter to NotificationsBuilt events.
func (x *BoxExporter) Subscribe(bus events.Bus) {
	bus.Subscribe(events.NotificationsBuilt{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		built, ok := e.(events.NotificationsBuilt)
		if !ok {
			return nil
		}
		return x.Export(ctx, built.Notifications)
	}))
}

// Export writes the batch. Per-agent files keep that agent's notifications
// in creation order.
func (x *BoxExporter) Export(ctx context.Context, batch []domain.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	index, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notification box: %w", err)
	}
	if err := x.store.PutJSON(ctx, x.bucket, BoxIndexKey, index); err != nil {
		return err
	}

	perAgent := make(map[string][]domain.Notification)
	for _, n := range batch {
		perAgent[n.AgentID] = append(perAgent[n.AgentID], n)
	}
	agents := make([]string, 0, len(perAgent))
	for a := range perAgent {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	for _, agent := range agents {
		body, err := json.MarshalIndent(perAgent[agent], "", "  ")
		if err != nil {
			return fmt.Errorf("encode notifications for %s: %w", agent, err)
		}
		if err := x.store.PutJSON(ctx, x.bucket, AgentKey(agent), body); err != nil {
			return err
		}
	}
	if x.log != nil {
		x.log.WithContext(ctx).Info("notification box exported", "bucket", x.bucket, "notifications", len(batch), "agents", len(agents))
	}
	return nil
}

// AgentKey is the object key of one agent's notifications.
func AgentKey(agentID string) string {
	return path.Join("dealers", sanitizeKey(agentID)+".json")
}

func sanitizeKey(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
