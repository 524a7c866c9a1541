package handlers

import (
	"context"

	"github.com/engagekit/engagekit/internal/notifier"
	"github.com/engagekit/engagekit/internal/version"
)

// BrowserStatus is implemented by the browser manager.
type BrowserStatus interface {
	Running() bool
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status         string   `json:"status"`
	Version        string   `json:"version"`
	BrowserRunning bool     `json:"browserRunning"`
	Platforms      []string `json:"platforms"`
	DroppedEvents  int64    `json:"droppedEvents,omitempty"`
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	browser    BrowserStatus
	dispatcher *notifier.Dispatcher
	platforms  []string
}

// NewHealthHandler creates a health handler. dispatcher may be nil.
func NewHealthHandler(browser BrowserStatus, dispatcher *notifier.Dispatcher, platforms []string) *HealthHandler {
	return &HealthHandler{
		browser:    browser,
		dispatcher: dispatcher,
		platforms:  platforms,
	}
}

// HealthOutput is the output wrapper for Huma.
type HealthOutput struct {
	Body HealthResponse
}

// Handle returns the health status. The service stays healthy with the
// browser down; it starts lazily on the first action.
func (h *HealthHandler) Handle(ctx context.Context) *HealthResponse {
	resp := &HealthResponse{
		Status:         "healthy",
		Version:        version.Get().Version,
		BrowserRunning: h.browser != nil && h.browser.Running(),
		Platforms:      h.platforms,
	}
	if h.dispatcher != nil {
		resp.DroppedEvents = h.dispatcher.Dropped()
	}
	return resp
}
