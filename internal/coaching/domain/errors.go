package domain

import "dealer_coach_backend/platform/apperr"

// Sentinel errors for conditions callers branch on. Match them with
// errors.Is or by kind through apperr.Is.
var (
	ErrSessionNotFound  = apperr.NotFound("approval session not found")
	ErrSessionTerminal  = apperr.InvalidOperatorInput("approval session is already dispatched")
	ErrSessionForbidden = apperr.Forbidden("approval session belongs to another operator")
	ErrNoTargets        = apperr.Validation("no agents selected for dispatch")
	ErrDispatchDisabled = apperr.Configuration("dispatch is not configured")
)
