package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dealer_coach_backend/internal/coaching/agent"
	"dealer_coach_backend/internal/coaching/dispatch"
	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/logger"
)

type fakeComposer struct {
	calls []agent.ComposeInput
	err   error
}

func (f *fakeComposer) Compose(_ context.Context, in agent.ComposeInput) (string, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return "", f.err
	}
	msg := "draft:" + string(in.Style)
	if in.PerformanceLevel != "" {
		msg += ":" + string(in.PerformanceLevel)
	}
	return msg, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []dispatch.Review
	fail map[string]bool
}

func (r *recordingDispatcher) Send(_ context.Context, rv dispatch.Review) (dispatch.Result, error) {
	r.mu.Lock()
	r.sent = append(r.sent, rv)
	r.mu.Unlock()
	if r.fail[rv.SalespersonID] {
		return dispatch.Result{}, errors.New("unreachable")
	}
	return dispatch.Result{Success: true}, nil
}

type fixture struct {
	wf       *Workflow
	composer *fakeComposer
	sender   *recordingDispatcher
	store    *MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		composer: &fakeComposer{},
		sender:   &recordingDispatcher{fail: map[string]bool{}},
		store:    NewMemoryStore(),
	}
	f.wf = NewWorkflow(Deps{
		Composer:   f.composer,
		Sender:     dispatch.NewBatch(f.sender, dispatch.BatchOptions{ManagerID: "1", Concurrency: 1}, logger.Discard()),
		Classifier: agent.RiskBandClassifier{Low: 0.66, Medium: 0.33},
		Store:      f.store,
		Log:        logger.Discard(),
		Now:        func() time.Time { return time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC) },
	})
	return f
}

func startInput() StartInput {
	return StartInput{
		OperatorID:      "op-1",
		Goal:            "Increase conversion by 10% in 30 days",
		HorizonDays:     30,
		Recommendations: []domain.Recommendation{{ID: 1, Title: "Call back lost leads"}},
		Targets: []domain.TargetDecision{
			{AgentID: "A", Reason: "r"},
			{AgentID: "B", Reason: "r"},
			{AgentID: "C", Reason: "r"},
		},
		Preview: []domain.KPIRow{
			{AgentID: "A", Risk: 1},
			{AgentID: "B", Risk: 0.5},
			{AgentID: "C", Risk: 0.1},
		},
	}
}

func (f *fixture) start(t *testing.T) *Session {
	t.Helper()
	s, err := f.wf.Start(context.Background(), startInput())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from State
		act  ActionType
		to   State
		ok   bool
	}{
		{StateDraft, actionReady, StateReview, true},
		{StateDraft, ActionApprove, "", false},
		{StateReview, ActionRegenerate, StateReview, true},
		{StateReview, ActionEdit, StateReview, true},
		{StateReview, ActionApprove, StateDispatched, true},
		{StateReview, ActionGroupSend, StateDispatched, true},
		{StateReview, "delete", "", false},
		{StateDispatched, ActionEdit, "", false},
	}
	for _, tt := range tests {
		to, ok := Next(tt.from, tt.act)
		if to != tt.to || ok != tt.ok {
			t.Errorf("Next(%s, %s) = %s, %v; want %s, %v", tt.from, tt.act, to, ok, tt.to, tt.ok)
		}
	}
	if !StateDispatched.Terminal() || StateReview.Terminal() {
		t.Fatal("only DISPATCHED is terminal")
	}
}

func TestStartEntersReview(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	if s.State != StateReview {
		t.Fatalf("expected REVIEW, got %s", s.State)
	}
	if s.Draft != "draft:professional" || s.Style != domain.StyleProfessional {
		t.Fatalf("unexpected draft %q style %q", s.Draft, s.Style)
	}
	if f.store.Len() != 1 {
		t.Fatalf("session should be stored")
	}
}

func TestStartWithoutTargetsIsRejected(t *testing.T) {
	f := newFixture(t)
	in := startInput()
	in.Targets = nil
	if _, err := f.wf.Start(context.Background(), in); !errors.Is(err, domain.ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
	if len(f.composer.calls) != 0 {
		t.Fatal("composer must not be called")
	}
}

func TestStartCompositionFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.composer.err = apperr.GenerationFormat("composition: empty message", nil)
	if _, err := f.wf.Start(context.Background(), startInput()); !apperr.Is(err, apperr.KindGenerationFormat) {
		t.Fatalf("expected generation format error, got %v", err)
	}
	if f.store.Len() != 0 {
		t.Fatal("nothing should be stored")
	}
}

func TestEditThenApproveDispatchesEditedTextOncePerTarget(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	ctx := context.Background()

	out, err := f.wf.Apply(ctx, s.ID, "op-1", Action{Type: ActionEdit, Text: "X"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if out.Session.State != StateReview || out.Session.Draft != "X" {
		t.Fatalf("unexpected session after edit %+v", out.Session)
	}

	out, err = f.wf.Apply(ctx, s.ID, "op-1", Action{Type: ActionApprove})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Session.State != StateDispatched {
		t.Fatalf("expected DISPATCHED, got %s", out.Session.State)
	}
	if len(f.sender.sent) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(f.sender.sent))
	}
	per := map[string]int{}
	for _, r := range f.sender.sent {
		if r.Text != "X" {
			t.Fatalf("expected body X, got %q", r.Text)
		}
		per[r.SalespersonID]++
	}
	for _, id := range []string{"A", "B", "C"} {
		if per[id] != 1 {
			t.Fatalf("expected exactly one send to %s, got %d", id, per[id])
		}
	}
	if f.store.Len() != 0 {
		t.Fatal("dispatched session should be discarded")
	}
	if _, err := f.wf.Apply(ctx, s.ID, "op-1", Action{Type: ActionEdit, Text: "Y"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("actions after dispatch must fail, got %v", err)
	}
}

func TestEditKeepsOperatorTextVerbatim(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	ctx := context.Background()
	text := "Keep first reply < 10 min and log > 3 follow-ups.\n\n\nThanks &amp; good luck"

	if _, err := f.wf.Apply(ctx, s.ID, "op-1", Action{Type: ActionEdit, Text: text}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, err := f.wf.Apply(ctx, s.ID, "op-1", Action{Type: ActionApprove}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(f.sender.sent) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(f.sender.sent))
	}
	for _, r := range f.sender.sent {
		if r.Text != text {
			t.Fatalf("edited text changed on the way out: %q", r.Text)
		}
	}
}

// stickyStore keeps sessions because Delete always fails.
type stickyStore struct {
	*MemoryStore
}

func (stickyStore) Delete(context.Context, string) error {
	return errors.New("redis unavailable")
}

func TestFailedDiscardStillBlocksSecondDispatch(t *testing.T) {
	f := newFixture(t)
	f.wf.store = stickyStore{f.store}
	s := f.start(t)
	ctx := context.Background()

	if _, err := f.wf.Apply(ctx, s.ID, "op-1", Action{Type: ActionApprove}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, err := f.wf.Get(ctx, s.ID, "op-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateDispatched || len(got.Results) != 3 {
		t.Fatalf("expected stored DISPATCHED session with results, got %+v", got)
	}

	for _, a := range []Action{{Type: ActionApprove}, {Type: ActionGroupSend}} {
		if _, err := f.wf.Apply(ctx, s.ID, "op-1", a); !errors.Is(err, domain.ErrSessionTerminal) {
			t.Fatalf("%s after dispatch: expected ErrSessionTerminal, got %v", a.Type, err)
		}
	}
	if len(f.sender.sent) != 3 {
		t.Fatalf("expected exactly 3 sends, got %d", len(f.sender.sent))
	}
}

func TestInvalidActionKeepsDraft(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	ctx := context.Background()

	for _, a := range []Action{{Type: "delete"}, {Type: "ready"}, {Type: ActionEdit, Text: "   "}, {Type: ActionRegenerate, Style: "sarcastic"}} {
		if _, err := f.wf.Apply(ctx, s.ID, "op-1", a); !apperr.Is(err, apperr.KindInvalidOperatorInput) {
			t.Fatalf("action %+v: expected invalid operator input, got %v", a, err)
		}
	}

	got, err := f.wf.Get(ctx, s.ID, "op-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateReview || got.Draft != s.Draft {
		t.Fatalf("session changed after invalid input: %+v", got)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestRegenerateChangesStyleAndKeepsDraftOnFailure(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	ctx := context.Background()

	out, err := f.wf.Apply(ctx, s.ID, "op-1", Action{Type: ActionRegenerate, Style: "Motivational"})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if out.Session.Draft != "draft:motivational" || out.Session.Style != domain.StyleMotivational {
		t.Fatalf("unexpected regenerate result %+v", out.Session)
	}

	f.composer.err = apperr.GenerationFormat("down", nil)
	if _, err := f.wf.Apply(ctx, s.ID, "op-1", Action{Type: ActionRegenerate, Style: "friendly"}); !apperr.Is(err, apperr.KindGenerationFormat) {
		t.Fatalf("expected generation error, got %v", err)
	}
	got, _ := f.wf.Get(ctx, s.ID, "op-1")
	if got.Draft != "draft:motivational" || got.Style != domain.StyleMotivational || got.State != StateReview {
		t.Fatalf("failed regenerate must keep the old draft: %+v", got)
	}
}

func TestGroupSendWithOneFailingRecipient(t *testing.T) {
	f := newFixture(t)
	f.sender.fail["B"] = true
	s := f.start(t)

	out, err := f.wf.Apply(context.Background(), s.ID, "op-1", Action{Type: ActionGroupSend})
	if err != nil {
		t.Fatalf("group_send: %v", err)
	}
	if out.Session.State != StateDispatched {
		t.Fatalf("expected DISPATCHED, got %s", out.Session.State)
	}
	if len(out.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out.Results))
	}
	failed := 0
	for _, r := range out.Results {
		if !r.Success {
			failed++
			if r.Recipient != "B" {
				t.Fatalf("unexpected failed recipient %s", r.Recipient)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected 1 failure, got %d", failed)
	}

	texts := map[string]string{}
	for _, r := range f.sender.sent {
		texts[r.SalespersonID] = r.Text
	}
	if texts["A"] != "draft:professional:low" || texts["B"] != "draft:professional:medium" || texts["C"] != "draft:professional:high" {
		t.Fatalf("unexpected per-level texts %v", texts)
	}
	if len(out.Session.GroupMessages) != 3 {
		t.Fatalf("expected one message per level, got %v", out.Session.GroupMessages)
	}
}

func TestGroupSendSelectedLevelsOnly(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)

	out, err := f.wf.Apply(context.Background(), s.ID, "op-1", Action{Type: ActionGroupSend, Levels: []domain.PerformanceLevel{"LOW"}})
	if err != nil {
		t.Fatalf("group_send: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].Recipient != "A" || out.Results[0].Level != domain.LevelLow {
		t.Fatalf("unexpected results %+v", out.Results)
	}
}

func TestGroupSendCompositionFailureSendsNothing(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	f.composer.err = apperr.GenerationFormat("down", nil)

	if _, err := f.wf.Apply(context.Background(), s.ID, "op-1", Action{Type: ActionGroupSend}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("nothing should be sent when a group message fails")
	}
	got, _ := f.wf.Get(context.Background(), s.ID, "op-1")
	if got.State != StateReview {
		t.Fatalf("session should stay in REVIEW, got %s", got.State)
	}
}

func TestOtherOperatorIsForbidden(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	if _, err := f.wf.Apply(context.Background(), s.ID, "op-2", Action{Type: ActionApprove}); !errors.Is(err, domain.ErrSessionForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("nothing should be sent")
	}
}
