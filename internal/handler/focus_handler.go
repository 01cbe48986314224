package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "focuspal/backend/internal/errors"
	"focuspal/backend/internal/middleware"
	"focuspal/backend/internal/service"
)

type FocusHandler struct {
	focusService *service.FocusService
}

type versionRequest struct {
	BaseVersion int `json:"baseVersion"`
}

type startRequest struct {
	BaseVersion int `json:"baseVersion"`
	Minutes     int `json:"minutes"`
}

type stopRequest struct {
	BaseVersion int   `json:"baseVersion"`
	Manually    *bool `json:"manually"`
}

type updateSettingsRequest struct {
	FocusMinutes int `json:"focusMinutes"`
	BreakMinutes int `json:"breakMinutes"`
}

func NewFocusHandler(focusService *service.FocusService) *FocusHandler {
	return &FocusHandler{focusService: focusService}
}

func (h *FocusHandler) GetState(c *gin.Context) {
	state, apiErr := h.focusService.GetState(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *FocusHandler) Start(c *gin.Context) {
	var req startRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	state, apiErr := h.focusService.Start(c.Request.Context(), middleware.UserID(c), req.Minutes, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *FocusHandler) StartBreak(c *gin.Context) {
	var req startRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	state, apiErr := h.focusService.StartBreak(c.Request.Context(), middleware.UserID(c), req.Minutes, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *FocusHandler) Pause(c *gin.Context) {
	var req versionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	state, apiErr := h.focusService.Pause(c.Request.Context(), middleware.UserID(c), req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *FocusHandler) Resume(c *gin.Context) {
	var req versionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	state, apiErr := h.focusService.Resume(c.Request.Context(), middleware.UserID(c), req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *FocusHandler) Stop(c *gin.Context) {
	var req stopRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	manually := true
	if req.Manually != nil {
		manually = *req.Manually
	}

	state, apiErr := h.focusService.Stop(c.Request.Context(), middleware.UserID(c), manually, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *FocusHandler) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.InvalidJSON())
		return
	}

	state, apiErr := h.focusService.UpdateSettings(c.Request.Context(), middleware.UserID(c), req.FocusMinutes, req.BreakMinutes)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *FocusHandler) GetHistory(c *gin.Context) {
	input := service.HistoryInput{
		Kind:   c.Query("kind"),
		Status: c.Query("status"),
	}
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			input.Limit = parsed
		}
	}

	sessions, apiErr := h.focusService.GetHistory(c.Request.Context(), middleware.UserID(c), input)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *FocusHandler) GetStats(c *gin.Context) {
	stats, apiErr := h.focusService.GetStats(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *FocusHandler) ListNotifications(c *gin.Context) {
	items, apiErr := h.focusService.ListNotifications(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// Events streams state snapshots as server-sent events, starting with the
// current state.
func (h *FocusHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	events, cancel, initial := h.focusService.Subscribe(ctx, middleware.UserID(c))
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent("state", initial)
	c.Writer.Flush()

	for {
		select {
		case state, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("state", state)
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}
