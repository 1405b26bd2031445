package agent

import (
	"context"
	"strings"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/logger"
)

const summarySystem = `You are a business analyst for a car dealership group.
Write a short report on the agents in the data with two sections:
Identified issues: the concrete problems visible in the numbers (low conversion, falling revenue, high risk), naming agents.
Recommendations: what front-line advisors could do about each issue.
Plain text, no tables, at most 250 words.`

// Summarizer turns a KPI preview into prose for the ranker.
type Summarizer struct {
	gen TextGenerator
	log *logger.Logger
}

// NewSummarizer creates a summarizer.
func NewSummarizer(gen TextGenerator, log *logger.Logger) *Summarizer {
	return &Summarizer{gen: gen, log: log}
}

type summaryPayload struct {
	Goal        string          `json:"goal"`
	HorizonDays int             `json:"horizon_days"`
	KPIsPreview []domain.KPIRow `json:"kpis_preview"`
}

// Summarize fails on a collaborator error or an empty reply.
func (s *Summarizer) Summarize(ctx context.Context, prompt domain.ManagerPrompt, preview []domain.KPIRow) (string, error) {
	raw, err := call(ctx, s.gen, s.log, Prompt{
		Stage:  StageSummary,
		System: summarySystem,
		Payload: summaryPayload{
			Goal:        sanitizeUserInput(prompt.Goal, maxGoalLength),
			HorizonDays: prompt.HorizonDays,
			KPIsPreview: preview,
		},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(stripFences(raw))
	if text == "" {
		return "", apperr.GenerationFormat("summary: empty reply", nil)
	}
	return text, nil
}
