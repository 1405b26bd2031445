// Package coaching provides the dealer coaching bounded context module.
// This file defines the module that wires the pipeline, the approval
// workflow and their collaborators, and registers the HTTP routes.
package coaching

import (
	"context"

	"dealer_coach_backend/internal/coaching/agent"
	"dealer_coach_backend/internal/coaching/approval"
	"dealer_coach_backend/internal/coaching/dispatch"
	"dealer_coach_backend/internal/coaching/handler"
	"dealer_coach_backend/internal/coaching/notify"
	"dealer_coach_backend/internal/coaching/pipeline"
	"dealer_coach_backend/internal/coaching/repository"
	"dealer_coach_backend/internal/coaching/service"
	"dealer_coach_backend/internal/coaching/transport"
	"dealer_coach_backend/internal/events"
	apphttp "dealer_coach_backend/internal/http"
	"dealer_coach_backend/platform/config"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/validator"

	"google.golang.org/adk/model"
)

// ModuleDeps are the infrastructure pieces the module is built from.
// Model and Dispatcher may be nil when text generation or review delivery
// are not configured. Without a Repository the module reads from Source and
// keeps no notifications or dispatch log.
type ModuleDeps struct {
	Repository *repository.Repository
	Source     pipeline.Source
	Sessions   approval.Store
	Bus        events.Bus
	Validator  *validator.Validator
	Config     *config.Config
	Model      model.LLM
	Dispatcher dispatch.Dispatcher
	Log        *logger.Logger
}

// Module is the coaching bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the coaching module with all its dependencies.
func NewModule(d ModuleDeps) (*Module, error) {
	defaults, err := service.DefaultsFrom(d.Config)
	if err != nil {
		return nil, err
	}
	if err := transport.RegisterValidations(d.Validator); err != nil {
		return nil, err
	}

	var gen agent.TextGenerator
	if d.Model != nil {
		gen = agent.NewLLMGenerator(d.Model, agent.GeneratorOptions{
			Temperature: d.Config.GetLLMTemperature(),
			Timeout:     d.Config.GetLLMTimeout(),
		}, d.Log)
	} else {
		d.Log.Warn("text generation not configured; ranking and composition will fail")
	}
	wording := agent.DefaultWording()

	source := d.Source
	var notifications service.NotificationStore
	if d.Repository != nil {
		source = d.Repository
		notifications = d.Repository
		subscribeDispatchLog(d.Bus, d.Repository, d.Log)
	}

	pl := pipeline.New(pipeline.Deps{
		Source:     source,
		Ranker:     agent.NewRanker(gen, wording, d.Log),
		Selector:   agent.NewSelector(gen, wording, d.Log),
		Summarizer: agent.NewSummarizer(gen, d.Log),
		Bus:        d.Bus,
		Log:        d.Log,
	})

	riskBands := agent.RiskBandClassifier{Low: d.Config.GetRiskBandLow(), Medium: d.Config.GetRiskBandMedium()}
	var classifier agent.Classifier = riskBands
	if gen != nil {
		classifier = agent.FallbackClassifier{
			Primary:   agent.NewPerformanceClassifier(gen, d.Log),
			Secondary: riskBands,
			Log:       d.Log,
		}
	}

	var sender approval.Sender
	if d.Dispatcher != nil {
		sender = dispatch.NewBatch(d.Dispatcher, dispatch.BatchOptions{
			ManagerID:     d.Config.GetManagerID(),
			Concurrency:   d.Config.GetDispatchConcurrency(),
			RatePerSecond: d.Config.GetDispatchRatePerSecond(),
		}, d.Log)
	}
	wf := approval.NewWorkflow(approval.Deps{
		Composer:   agent.NewComposer(gen, wording, d.Log),
		Sender:     sender,
		Classifier: classifier,
		Store:      d.Sessions,
		Bus:        d.Bus,
		Log:        d.Log,
	})

	var goals service.GoalValidator
	if gen != nil {
		goals = agent.NewGoalValidator(gen, d.Log)
	}
	svc := service.New(service.Deps{
		Pipeline:      pl,
		Workflow:      wf,
		Goals:         goals,
		Notifications: notifications,
		Builder:       notify.NewBuilder(nil, nil),
		Bus:           d.Bus,
		Defaults:      defaults,
		Log:           d.Log,
	})

	return &Module{
		handler: handler.New(svc, d.Validator),
		service: svc,
	}, nil
}

// subscribeDispatchLog persists every dispatch result once a session ends.
func subscribeDispatchLog(bus events.Bus, repo *repository.Repository, log *logger.Logger) {
	bus.Subscribe(events.SessionDispatched{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.SessionDispatched)
		if !ok {
			return nil
		}
		entries := make([]repository.DispatchEntry, 0, len(e.Results))
		for _, r := range e.Results {
			entries = append(entries, repository.DispatchEntry{
				SessionID:  e.SessionID,
				OperatorID: e.OperatorID,
				Action:     e.Action,
				Result:     r,
				At:         e.OccurredAt(),
			})
		}
		if err := repo.LogDispatch(ctx, entries); err != nil {
			log.DatabaseError("log dispatch", err)
			return err
		}
		return nil
	}))
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "coaching"
}

// Service returns the coaching service for the scheduler and the console.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts coaching routes on the operator-aware group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Operated.Group("/coaching"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
