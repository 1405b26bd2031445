// Package notify builds structured nudges for individual agents and mirrors
// them to the notification box in object storage.
package notify

import (
	"fmt"
	"time"

	"dealer_coach_backend/internal/coaching/domain"

	"github.com/google/uuid"
)

const (
	TypeSalesNudge     = "sales_nudge"
	AudienceIndividual = "individual"
	DefaultTitle       = "Attention: improvement opportunity"
)

// Menu is the fixed action menu of every notification.
func Menu() []domain.Action {
	return []domain.Action{
		{Type: "open_dashboard", Label: "Open dashboard"},
		{Type: "ack", Label: "Understood"},
	}
}

// Builder stamps notifications with ids and creation times.
type Builder struct {
	Now   func() time.Time
	NewID func() uuid.UUID
}

// NewBuilder creates a builder. Nil functions use the wall clock and random
// ids.
func NewBuilder(now func() time.Time, newID func() uuid.UUID) *Builder {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.New
	}
	return &Builder{Now: now, NewID: newID}
}

// Input is everything one notification is built from.
type Input struct {
	Row             domain.KPIRow
	Decision        domain.TargetDecision
	Recommendations []domain.Recommendation
	Goal            string
	WindowDays      int
}

// Build copies the row metrics into the payload. The notification never
// changes after this call.
func (b *Builder) Build(in Input) domain.Notification {
	r := in.Row
	body := fmt.Sprintf("Goal: %s\nIn the last %d days: conversion %.1f%%, revenue %d, points %d.",
		in.Goal, in.WindowDays, r.Conversion*100, int64(r.Revenue), int64(r.Points))
	if len(in.Recommendations) > 0 {
		body += "\nSuggested actions:"
		for _, rec := range in.Recommendations {
			body += "\n- " + rec.Title
		}
	} else {
		body += "\nSuggestion: apply the directions from the manager's announcement."
	}

	actions := Menu()
	return domain.Notification{
		ID:       b.NewID().String(),
		Type:     TypeSalesNudge,
		Audience: AudienceIndividual,
		AgentID:  r.AgentID,
		Region:   r.Region,
		Tier:     r.Tier,
		Title:    DefaultTitle,
		Body:     body,
		Reason:   in.Decision.Reason,
		Metrics: domain.MetricsSnapshot{
			Conversion:         r.Conversion,
			Revenue:            r.Revenue,
			Points:             r.Points,
			RiskOfUnderperform: r.Risk,
			TrendRevenue:       r.TrendRevenue,
		},
		Actions:   actions,
		CreatedAt: b.Now().UTC(),
	}
}

// BuildAll builds one notification per decision, using the decision's
// highest-risk row. Decisions without a row are skipped.
func (b *Builder) BuildAll(rows []domain.KPIRow, decisions []domain.TargetDecision, recs []domain.Recommendation, goal string, windowDays int) []domain.Notification {
	byAgent := make(map[string]domain.KPIRow, len(rows))
	for _, r := range rows {
		if cur, ok := byAgent[r.AgentID]; !ok || r.Risk > cur.Risk {
			byAgent[r.AgentID] = r
		}
	}
	out := make([]domain.Notification, 0, len(decisions))
	for _, d := range decisions {
		row, ok := byAgent[d.AgentID]
		if !ok {
			continue
		}
		out = append(out, b.Build(Input{
			Row:             row,
			Decision:        d,
			Recommendations: recs,
			Goal:            goal,
			WindowDays:      windowDays,
		}))
	}
	return out
}
