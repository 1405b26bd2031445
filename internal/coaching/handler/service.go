package handler

import (
	"context"

	"dealer_coach_backend/internal/coaching/approval"
	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/coaching/pipeline"
	"dealer_coach_backend/internal/coaching/scoring"
	"dealer_coach_backend/internal/coaching/service"
	"dealer_coach_backend/internal/coaching/transport"
)

// Service is what the handler needs from the coaching service.
type Service interface {
	ValidateGoal(ctx context.Context, req transport.ValidateGoalRequest) (transport.ValidateGoalResponse, error)
	Run(ctx context.Context, req transport.RunRequest) (*pipeline.Result, error)
	Preview(ctx context.Context, req transport.PreviewRequest) (*pipeline.Analysis, error)
	StartSession(ctx context.Context, operatorID string, req transport.StartSessionRequest) (*service.SessionStarted, error)
	GetSession(ctx context.Context, id, operatorID string) (*approval.Session, error)
	ApplyAction(ctx context.Context, id, operatorID string, req transport.ActionRequest) (*approval.Outcome, error)
	BuildNotifications(ctx context.Context, req transport.NotificationsRequest) ([]domain.Notification, error)
	ListNotifications(ctx context.Context, agentID string, limit int) ([]domain.Notification, error)
	Champions(ctx context.Context, req transport.ChampionsRequest) ([]scoring.Champion, error)
}

var _ Service = (*service.Service)(nil)
