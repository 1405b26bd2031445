// Package handler provides HTTP handlers for the coaching API.
package handler

import (
	"net/http"
	"strconv"

	"dealer_coach_backend/internal/coaching/transport"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/httpkit"
	"dealer_coach_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles coaching HTTP requests.
type Handler struct {
	svc Service
	val *validator.Validator
}

// New creates a coaching handler.
func New(svc Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the coaching routes on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/goals/validate", h.ValidateGoal)
	rg.POST("/runs", h.Run)
	rg.GET("/preview", h.Preview)
	rg.GET("/champions", h.Champions)

	rg.POST("/notifications", h.BuildNotifications)
	rg.GET("/notifications/:agentId", h.ListNotifications)

	sessions := rg.Group("/sessions")
	sessions.POST("", h.StartSession)
	sessions.GET("/:id", h.GetSession)
	sessions.POST("/:id/actions", h.ApplyAction)
}

func (h *Handler) ValidateGoal(c *gin.Context) {
	var req transport.ValidateGoalRequest
	if !h.bindJSON(c, &req) {
		return
	}
	res, err := h.svc.ValidateGoal(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

func (h *Handler) Run(c *gin.Context) {
	var req transport.RunRequest
	if !h.bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Run(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

func (h *Handler) Preview(c *gin.Context) {
	var req transport.PreviewRequest
	if !h.bindQuery(c, &req) {
		return
	}
	res, err := h.svc.Preview(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

func (h *Handler) Champions(c *gin.Context) {
	var req transport.ChampionsRequest
	if !h.bindQuery(c, &req) {
		return
	}
	res, err := h.svc.Champions(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": res})
}

func (h *Handler) BuildNotifications(c *gin.Context) {
	var req transport.NotificationsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	items, err := h.svc.BuildNotifications(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.NotificationsResponse{Items: items})
}

func (h *Handler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.svc.ListNotifications(c.Request.Context(), c.Param("agentId"), limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NotificationsResponse{Items: items})
}

func (h *Handler) StartSession(c *gin.Context) {
	op := httpkit.MustGetOperator(c)
	if op == nil {
		return
	}
	var req transport.StartSessionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	res, err := h.svc.StartSession(c.Request.Context(), op.ID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, res)
}

func (h *Handler) GetSession(c *gin.Context) {
	op := httpkit.MustGetOperator(c)
	if op == nil {
		return
	}
	s, err := h.svc.GetSession(c.Request.Context(), c.Param("id"), op.ID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, s)
}

// ApplyAction reports malformed actions as invalid operator input so the
// caller sees the same kind whichever layer rejected it.
func (h *Handler) ApplyAction(c *gin.Context) {
	op := httpkit.MustGetOperator(c)
	if op == nil {
		return
	}
	var req transport.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.InvalidOperatorInput(msgInvalidRequest))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.InvalidOperatorInput(msgValidationFailed).WithDetails(validator.Describe(err)))
		return
	}
	out, err := h.svc.ApplyAction(c.Request.Context(), c.Param("id"), op.ID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, out)
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) validate(c *gin.Context, req any) bool {
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Describe(err))
		return false
	}
	return true
}
