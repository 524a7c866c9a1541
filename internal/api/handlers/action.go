// Package handlers provides HTTP handlers for the engagekit service API.
package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/engagekit/engagekit/internal/browser"
	"github.com/engagekit/engagekit/internal/executor"
	"github.com/engagekit/engagekit/internal/history"
	"github.com/engagekit/engagekit/internal/models"
)

// ActionHandler executes actions and records them.
type ActionHandler struct {
	exec    *executor.Executor
	history *history.SQLiteStore
	logger  *slog.Logger
}

// NewActionHandler creates an action handler.
func NewActionHandler(exec *executor.Executor, hist *history.SQLiteStore, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{
		exec:    exec,
		history: hist,
		logger:  logger,
	}
}

// ActionInput is the input wrapper for Huma.
type ActionInput struct {
	Body models.ActionRequest
}

// ActionOutput is the output wrapper for Huma.
type ActionOutput struct {
	Body models.ActionResult
}

// Handle runs one action to completion. Expected failures come back inside
// the result body; malformed requests map to 422.
func (h *ActionHandler) Handle(ctx context.Context, req *models.ActionRequest) (*models.ActionResult, error) {
	result, err := h.exec.Execute(ctx, *req)
	if err != nil {
		if errors.Is(err, browser.ErrNotStarted) {
			return nil, huma.Error503ServiceUnavailable("browser is still starting")
		}
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	if h.history != nil {
		if err := h.history.Append(ctx, result); err != nil {
			h.logger.Warn("failed to record action history",
				"platform", result.Platform,
				"action", result.Action,
				"error", err)
		}
	}
	return result, nil
}

// RecentInput selects how many history records to return.
type RecentInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Maximum number of records"`
}

// RecentOutput is the output wrapper for Huma.
type RecentOutput struct {
	Body RecentResponse
}

// RecentResponse lists recent actions, newest first.
type RecentResponse struct {
	Actions []*history.Record `json:"actions"`
}

// HandleRecent returns the most recent action records.
func (h *ActionHandler) HandleRecent(ctx context.Context, limit int) (*RecentResponse, error) {
	if h.history == nil {
		return &RecentResponse{Actions: []*history.Record{}}, nil
	}
	records, err := h.history.Recent(ctx, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read history")
	}
	return &RecentResponse{Actions: records}, nil
}
