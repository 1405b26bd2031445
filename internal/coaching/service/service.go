// Package service exposes the coaching use cases to transports: the HTTP
// handler, the scheduler and the console.
package service

import (
	"context"
	"fmt"
	"strings"

	"dealer_coach_backend/internal/coaching/agent"
	"dealer_coach_backend/internal/coaching/approval"
	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/coaching/notify"
	"dealer_coach_backend/internal/coaching/pipeline"
	"dealer_coach_backend/internal/coaching/scoring"
	"dealer_coach_backend/internal/coaching/transport"
	"dealer_coach_backend/internal/events"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/config"
	"dealer_coach_backend/platform/logger"
)

// NotificationStore persists built notifications.
type NotificationStore interface {
	SaveNotifications(ctx context.Context, items []domain.Notification) error
	ListNotifications(ctx context.Context, agentID string, limit int) ([]domain.Notification, error)
}

type GoalValidator interface {
	Validate(ctx context.Context, goal string, periodDays int) (agent.GoalVerdict, error)
}

// Defaults are the configured values a request falls back to.
type Defaults struct {
	WindowDays   int
	PreviewLimit int
	Policy       agent.Policy
	Summarize    bool
	Style        domain.Style
}

// DefaultsFrom reads the coaching tunables from configuration.
func DefaultsFrom(cfg config.CoachingConfig) (Defaults, error) {
	mode, err := agent.ParseMode(cfg.GetTargetingMode())
	if err != nil {
		return Defaults{}, apperr.Configuration(err.Error())
	}
	style, err := domain.ParseStyle(cfg.GetDefaultStyle())
	if err != nil {
		return Defaults{}, apperr.Configuration(err.Error())
	}
	return Defaults{
		WindowDays:   cfg.GetWindowDays(),
		PreviewLimit: cfg.GetPreviewLimit(),
		Policy:       agent.Policy{Mode: mode, TopN: cfg.GetTargetTopN(), MinRisk: cfg.GetTargetMinRisk()},
		Summarize:    cfg.IsSummaryEnabled(),
		Style:        style,
	}, nil
}

type Service struct {
	pipeline      *pipeline.Pipeline
	workflow      *approval.Workflow
	goals         GoalValidator
	notifications NotificationStore
	builder       *notify.Builder
	bus           events.Bus
	defaults      Defaults
	log           *logger.Logger
}

// Deps wires a Service. Goals and Notifications may be nil when the
// corresponding backends are not configured.
type Deps struct {
	Pipeline      *pipeline.Pipeline
	Workflow      *approval.Workflow
	Goals         GoalValidator
	Notifications NotificationStore
	Builder       *notify.Builder
	Bus           events.Bus
	Defaults      Defaults
	Log           *logger.Logger
}

func New(d Deps) *Service {
	if d.Builder == nil {
		d.Builder = notify.NewBuilder(nil, nil)
	}
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	return &Service{
		pipeline:      d.Pipeline,
		workflow:      d.Workflow,
		goals:         d.Goals,
		notifications: d.Notifications,
		builder:       d.Builder,
		bus:           d.Bus,
		defaults:      d.Defaults,
		log:           d.Log,
	}
}

// ValidateGoal asks the collaborator whether a goal is concrete and measurable
// and resolves its horizon.
func (s *Service) ValidateGoal(ctx context.Context, req transport.ValidateGoalRequest) (transport.ValidateGoalResponse, error) {
	horizon, _ := resolveHorizon(req.Goal, 0)
	if s.goals == nil {
		return transport.ValidateGoalResponse{IsValid: true, Why: []string{}, HorizonDays: horizon}, nil
	}
	v, err := s.goals.Validate(ctx, req.Goal, req.PeriodDays)
	if err != nil {
		return transport.ValidateGoalResponse{}, err
	}
	if v.HorizonDays == 0 {
		v.HorizonDays = horizon
	}
	return transport.ValidateGoalResponse{
		IsValid:     v.IsValid,
		Why:         v.Why,
		Suggestion:  v.Suggestion,
		HorizonDays: v.HorizonDays,
	}, nil
}

// Run executes the whole pipeline for one manager prompt.
func (s *Service) Run(ctx context.Context, req transport.RunRequest) (*pipeline.Result, error) {
	return s.pipeline.Run(ctx, s.params(req))
}

// Preview computes the risk-ordered KPI preview without any collaborator call.
func (s *Service) Preview(ctx context.Context, req transport.PreviewRequest) (*pipeline.Analysis, error) {
	p := pipeline.Params{
		WindowDays:   pick(req.WindowDays, s.defaults.WindowDays),
		PreviewLimit: pick(req.Limit, s.defaults.PreviewLimit),
	}
	if region := strings.TrimSpace(req.Region); region != "" {
		p.Prompt.Filters = map[string]string{"region": region}
	}
	return s.pipeline.Analyze(ctx, p)
}

// SessionStarted is the response of StartSession.
type SessionStarted struct {
	Session *approval.Session `json:"session"`
	Run     *pipeline.Result  `json:"run"`
}

// StartSession runs the pipeline and opens a review session on its output.
func (s *Service) StartSession(ctx context.Context, operatorID string, req transport.StartSessionRequest) (*SessionStarted, error) {
	if _, err := s.style(req.Style); err != nil {
		return nil, err
	}
	res, err := s.pipeline.Run(ctx, s.params(req.RunRequest))
	if err != nil {
		return nil, err
	}
	sess, err := s.OpenSession(ctx, operatorID, res, req.Style, req.Selected)
	if err != nil {
		return nil, err
	}
	return &SessionStarted{Session: sess, Run: res}, nil
}

// OpenSession starts a review on a finished run. selected holds the ids of
// the recommendations to keep; empty keeps all of them.
func (s *Service) OpenSession(ctx context.Context, operatorID string, run *pipeline.Result, style string, selected []int) (*approval.Session, error) {
	st, err := s.style(style)
	if err != nil {
		return nil, err
	}
	recs, err := SelectRecommendations(run.Recommendations, selected)
	if err != nil {
		return nil, err
	}
	return s.workflow.Start(ctx, approval.StartInput{
		OperatorID:      operatorID,
		Goal:            run.Prompt.Goal,
		HorizonDays:     run.Prompt.HorizonDays,
		Recommendations: recs,
		Targets:         run.Selection.Targets,
		Preview:         run.Preview,
		Style:           st,
	})
}

// SelectRecommendations keeps the recommendations whose id is in ids, in
// ranked order. An id that is not part of recs is a validation error.
func SelectRecommendations(recs []domain.Recommendation, ids []int) ([]domain.Recommendation, error) {
	if len(ids) == 0 {
		return recs, nil
	}
	known := make(map[int]bool, len(recs))
	for _, r := range recs {
		known[r.ID] = true
	}
	wanted := make(map[int]bool, len(ids))
	for _, id := range ids {
		if !known[id] {
			return nil, apperr.Validation(fmt.Sprintf("recommendation %d is not part of this run", id))
		}
		wanted[id] = true
	}
	out := make([]domain.Recommendation, 0, len(wanted))
	for _, r := range recs {
		if wanted[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) style(raw string) (domain.Style, error) {
	if strings.TrimSpace(raw) == "" {
		return s.defaults.Style, nil
	}
	st, err := domain.ParseStyle(raw)
	if err != nil {
		return "", apperr.Validation(err.Error())
	}
	return st, nil
}

func (s *Service) GetSession(ctx context.Context, id, operatorID string) (*approval.Session, error) {
	return s.workflow.Get(ctx, id, operatorID)
}

// ApplyAction forwards an operator action to the workflow.
func (s *Service) ApplyAction(ctx context.Context, id, operatorID string, req transport.ActionRequest) (*approval.Outcome, error) {
	levels := make([]domain.PerformanceLevel, 0, len(req.Levels))
	for _, l := range req.Levels {
		levels = append(levels, domain.PerformanceLevel(l))
	}
	return s.workflow.Apply(ctx, id, operatorID, approval.Action{
		Type:   approval.ParseAction(req.Type),
		Style:  req.Style,
		Text:   req.Text,
		Levels: levels,
	})
}

// BuildNotifications targets agents deterministically, builds one nudge per
// target and stores them. No text generator is involved.
func (s *Service) BuildNotifications(ctx context.Context, req transport.NotificationsRequest) ([]domain.Notification, error) {
	if s.notifications == nil {
		return nil, apperr.Configuration("notification store is not configured")
	}
	horizon, stated := resolveHorizon(req.Goal, req.HorizonDays)
	p := pipeline.Params{
		Prompt:       domain.ManagerPrompt{Goal: strings.TrimSpace(req.Goal), HorizonDays: horizon},
		WindowDays:   s.windowDays(req.WindowDays, horizon, stated),
		PreviewLimit: s.defaults.PreviewLimit,
	}
	if region := strings.TrimSpace(req.Region); region != "" {
		p.Prompt.Filters = map[string]string{"region": region}
	}
	analysis, err := s.pipeline.Analyze(ctx, p)
	if err != nil {
		return nil, err
	}

	minRisk := s.defaults.Policy.MinRisk
	if req.MinRisk != nil {
		minRisk = *req.MinRisk
	}
	targets := agent.Deterministic(analysis.Preview, pick(req.TopN, s.defaults.Policy.TopN), minRisk)
	items := s.builder.BuildAll(analysis.Rows, targets, nil, p.Prompt.Goal, p.WindowDays)
	if len(items) == 0 {
		return items, nil
	}
	if err := s.notifications.SaveNotifications(ctx, items); err != nil {
		s.log.WithContext(ctx).DatabaseError("save notifications", err)
		return nil, err
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.NotificationsBuilt{
			BaseEvent:     events.NewBaseEvent(),
			Notifications: items,
		})
	}
	return items, nil
}

func (s *Service) ListNotifications(ctx context.Context, agentID string, limit int) ([]domain.Notification, error) {
	if s.notifications == nil {
		return nil, apperr.Configuration("notification store is not configured")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, apperr.Validation("agent id is required")
	}
	return s.notifications.ListNotifications(ctx, agentID, limit)
}

// Champions returns the graded leaderboard.
func (s *Service) Champions(ctx context.Context, req transport.ChampionsRequest) ([]scoring.Champion, error) {
	return s.pipeline.Champions(ctx, pick(req.WindowDays, s.defaults.WindowDays), pick(req.Limit, 20))
}

func (s *Service) params(req transport.RunRequest) pipeline.Params {
	policy := s.defaults.Policy
	if req.TargetingMode != "" {
		if mode, err := agent.ParseMode(req.TargetingMode); err == nil {
			policy.Mode = mode
		}
	}
	policy.TopN = pick(req.TopN, policy.TopN)
	if req.MinRisk != nil {
		policy.MinRisk = *req.MinRisk
	}
	summarize := s.defaults.Summarize
	if req.Summarize != nil {
		summarize = *req.Summarize
	}
	horizon, stated := resolveHorizon(req.Goal, req.HorizonDays)
	return pipeline.Params{
		Prompt:       req.Prompt(horizon),
		WindowDays:   s.windowDays(req.WindowDays, horizon, stated),
		PreviewLimit: s.defaults.PreviewLimit,
		Policy:       policy,
		Summarize:    summarize,
	}
}

// resolveHorizon prefers an explicit horizon, then one stated in the goal.
// stated is false when the default horizon was used.
func resolveHorizon(goal string, explicit int) (int, bool) {
	if explicit > 0 {
		return agent.ClampHorizon(explicit), true
	}
	if days, ok := agent.HorizonFromGoal(goal); ok {
		return days, true
	}
	return agent.DefaultHorizonDays, false
}

// windowDays picks the KPI window: an explicit window, else the horizon the
// manager stated, else the configured default.
func (s *Service) windowDays(explicit, horizon int, stated bool) int {
	switch {
	case explicit > 0:
		return explicit
	case stated:
		return horizon
	default:
		return s.defaults.WindowDays
	}
}

func pick(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
