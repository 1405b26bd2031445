package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dealer_coach_backend/internal/coaching/agent"
	"dealer_coach_backend/internal/coaching/approval"
	"dealer_coach_backend/internal/coaching/dispatch"
	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/coaching/normalize"
	"dealer_coach_backend/internal/coaching/pipeline"
	"dealer_coach_backend/internal/coaching/service"
	"dealer_coach_backend/internal/coaching/transport"
	"dealer_coach_backend/platform/httpkit"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var clock = func() time.Time { return time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC) }

type stubRanker struct{}

func (stubRanker) Rank(context.Context, agent.RankInput) ([]domain.Recommendation, error) {
	return []domain.Recommendation{{ID: 1, Title: "Call back every open lead within 24h", Score: 1}}, nil
}

type stubComposer struct{}

func (stubComposer) Compose(_ context.Context, in agent.ComposeInput) (string, error) {
	return "Hello team, " + string(in.Style), nil
}

type sentLog struct {
	mu   sync.Mutex
	sent []dispatch.Review
}

func (s *sentLog) Send(_ context.Context, r dispatch.Review) (dispatch.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, r)
	return dispatch.Result{Success: true}, nil
}

type memoryInbox struct {
	items []domain.Notification
}

func (m *memoryInbox) SaveNotifications(_ context.Context, items []domain.Notification) error {
	m.items = append(m.items, items...)
	return nil
}

func (m *memoryInbox) ListNotifications(_ context.Context, agentID string, _ int) ([]domain.Notification, error) {
	out := []domain.Notification{}
	for _, n := range m.items {
		if n.AgentID == agentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func row(id, date string, leads, deals, revenue, points float64) map[string]any {
	return map[string]any{
		"dealer_id": id, "date": date, "region": "DE", "tier": "Gold",
		"leads": leads, "deals": deals, "revenue": revenue, "points": points,
	}
}

type env struct {
	router *gin.Engine
	sent   *sentLog
	inbox  *memoryInbox
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logger.Discard()
	src := pipeline.StaticSource{{Source: normalize.SourceActivity, Rows: []map[string]any{
		row("A", "2026-03-20", 10, 1, 500, 120),
		row("B", "2026-03-20", 10, 5, 1000, 320),
		row("C", "2026-03-21", 10, 2, 900, 40),
		row("A", "2026-02-15", 10, 3, 1000, 0),
		row("B", "2026-02-15", 10, 5, 1000, 0),
		row("C", "2026-02-15", 10, 2, 900, 0),
	}}}

	e := &env{sent: &sentLog{}, inbox: &memoryInbox{}}
	pl := pipeline.New(pipeline.Deps{
		Source:   src,
		Ranker:   stubRanker{},
		Selector: agent.NewSelector(nil, agent.DefaultWording(), log),
		Log:      log,
		Now:      clock,
	})
	wf := approval.NewWorkflow(approval.Deps{
		Composer: stubComposer{},
		Sender:   dispatch.NewBatch(e.sent, dispatch.BatchOptions{ManagerID: "7", Concurrency: 2}, log),
		Store:    approval.NewMemoryStore(),
		Log:      log,
		Now:      clock,
	})
	svc := service.New(service.Deps{
		Pipeline:      pl,
		Workflow:      wf,
		Notifications: e.inbox,
		Defaults: service.Defaults{
			WindowDays:   30,
			PreviewLimit: domain.PreviewLimit,
			Policy:       agent.Policy{Mode: agent.ModeDeterministic, TopN: 2},
			Style:        domain.StyleProfessional,
		},
		Log: log,
	})

	val := validator.New()
	require.NoError(t, transport.RegisterValidations(val))

	e.router = gin.New()
	e.router.Use(httpkit.OperatorIdentity())
	New(svc, val).RegisterRoutes(e.router.Group("/api/v1/coaching"))
	return e
}

func (e *env) do(t *testing.T, method, path, operator string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if operator != "" {
		req.Header.Set(httpkit.OperatorHeader, operator)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type sessionBody struct {
	Session struct {
		ID    string `json:"id"`
		State string `json:"state"`
		Draft string `json:"draft"`
	} `json:"session"`
	Results []domain.DispatchResult `json:"results"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSessionEditThenApprove(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/coaching/sessions", "op-1", map[string]any{
		"goal": "Increase conversion by 10% in 30 days",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode[sessionBody](t, rec)
	assert.Equal(t, "REVIEW", started.Session.State)
	assert.Equal(t, "Hello team, professional", started.Session.Draft)
	id := started.Session.ID

	rec = e.do(t, http.MethodPost, "/api/v1/coaching/sessions/"+id+"/actions", "op-1", map[string]any{"type": "edit", "text": "X"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "X", decode[sessionBody](t, rec).Session.Draft)

	rec = e.do(t, http.MethodPost, "/api/v1/coaching/sessions/"+id+"/actions", "op-1", map[string]any{"type": "approve"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[sessionBody](t, rec)
	assert.Equal(t, "DISPATCHED", done.Session.State)
	assert.Len(t, done.Results, 2)

	require.Len(t, e.sent.sent, 2)
	for _, r := range e.sent.sent {
		assert.Equal(t, "X", r.Text)
		assert.Equal(t, "7", r.ManagerID)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/coaching/sessions/"+id, "op-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionRejectsUnknownActionWith422(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/coaching/sessions", "op-1", map[string]any{"goal": "Grow revenue 5% in 4 weeks"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[sessionBody](t, rec).Session.ID

	rec = e.do(t, http.MethodPost, "/api/v1/coaching/sessions/"+id+"/actions", "op-1", map[string]any{"type": "publish"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/coaching/sessions/"+id+"/actions", "op-1", map[string]any{"type": "regenerate", "style": "sarcastic"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/coaching/sessions/"+id, "op-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var s approval.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, approval.StateReview, s.State)
	assert.Equal(t, "Hello team, professional", s.Draft)
	assert.Empty(t, e.sent.sent)
}

func TestSessionRequiresOperatorAndOwnership(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/coaching/sessions", "", map[string]any{"goal": "Grow revenue"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/coaching/sessions", "op-1", map[string]any{"goal": "Grow revenue"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[sessionBody](t, rec).Session.ID

	rec = e.do(t, http.MethodGet, "/api/v1/coaching/sessions/"+id, "op-2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRunValidation(t *testing.T) {
	e := newEnv(t)
	for _, body := range []map[string]any{
		{"goal": ""},
		{"goal": "Grow", "horizon_days": 3},
		{"goal": "Grow", "horizon_days": 121},
		{"goal": "Grow", "targeting_mode": "random"},
	} {
		rec := e.do(t, http.MethodPost, "/api/v1/coaching/runs", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
	}

	rec := e.do(t, http.MethodPost, "/api/v1/coaching/sessions", "op-1", map[string]any{"goal": "Grow", "style": "angry"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunReturnsPreviewRecommendationsAndTargets(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/coaching/runs", "", map[string]any{"goal": "Grow revenue", "top_n": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[pipeline.Result](t, rec)
	require.Len(t, res.Preview, 3)
	assert.Equal(t, "A", res.Preview[0].AgentID)
	assert.Len(t, res.Recommendations, 1)
	require.Len(t, res.Selection.Targets, 1)
	assert.Equal(t, "A", res.Selection.Targets[0].AgentID)
	assert.Equal(t, agent.SourceDeterministic, res.Selection.Source)
}

func TestPreviewAndChampions(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/coaching/preview?limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[pipeline.Analysis](t, rec)
	assert.Len(t, preview.Preview, 2)

	rec = e.do(t, http.MethodGet, "/api/v1/coaching/champions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Items []struct {
			AgentID string `json:"agent_id"`
			Grade   string `json:"grade"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 3)
	assert.Equal(t, "B", body.Items[0].AgentID)
	assert.Equal(t, "GOLD", body.Items[0].Grade)
	assert.Equal(t, "BRONZE", body.Items[1].Grade)
	assert.Equal(t, "-", body.Items[2].Grade)
}

func TestNotificationsBuildAndList(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/coaching/notifications", "", map[string]any{"goal": "Increase conversion", "top_n": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	built := decode[transport.NotificationsResponse](t, rec)
	require.Len(t, built.Items, 1)
	assert.Equal(t, "A", built.Items[0].AgentID)
	assert.Equal(t, "sales_nudge", built.Items[0].Type)

	rec = e.do(t, http.MethodGet, "/api/v1/coaching/notifications/A", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[transport.NotificationsResponse](t, rec).Items, 1)

	rec = e.do(t, http.MethodGet, "/api/v1/coaching/notifications/B", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[transport.NotificationsResponse](t, rec).Items)
}
