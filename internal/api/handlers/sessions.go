package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/engagekit/engagekit/internal/session"
)

// SessionsHandler exposes the persisted session files.
type SessionsHandler struct {
	store *session.Store
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(store *session.Store) *SessionsHandler {
	return &SessionsHandler{store: store}
}

// SessionsOutput is the output wrapper for Huma.
type SessionsOutput struct {
	Body SessionsResponse
}

// SessionsResponse lists the persisted sessions.
type SessionsResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

// HandleList returns summaries of every persisted session, expired included.
func (h *SessionsHandler) HandleList(ctx context.Context) (*SessionsResponse, error) {
	summaries, err := h.store.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list sessions")
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}
	return &SessionsResponse{Sessions: summaries}, nil
}

// SessionDeleteInput names the platform whose session file to delete.
type SessionDeleteInput struct {
	Platform string `path:"platform" doc:"Platform identifier, e.g. instagram"`
}

// HandleDelete removes a persisted session file. Deleting a platform with no
// session file succeeds.
func (h *SessionsHandler) HandleDelete(ctx context.Context, platform string) error {
	if err := h.store.Delete(platform); err != nil {
		return huma.Error500InternalServerError("failed to delete session")
	}
	return nil
}
