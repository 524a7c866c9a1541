package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/engagekit/engagekit/internal/models"
	"github.com/engagekit/engagekit/internal/platform"
	"github.com/engagekit/engagekit/internal/quota"
)

// QuotaHandler reports quota window status.
type QuotaHandler struct {
	store    *quota.Store
	registry *platform.Registry
}

// NewQuotaHandler creates a quota handler.
func NewQuotaHandler(store *quota.Store, registry *platform.Registry) *QuotaHandler {
	return &QuotaHandler{store: store, registry: registry}
}

// QuotaInput names the platform to inspect.
type QuotaInput struct {
	Platform string `path:"platform" doc:"Platform identifier, e.g. instagram"`
}

// QuotaOutput is the output wrapper for Huma.
type QuotaOutput struct {
	Body QuotaResponse
}

// QuotaResponse is the per-family window snapshot for one platform.
type QuotaResponse struct {
	Platform string                        `json:"platform"`
	Families map[string]models.QuotaStatus `json:"families"`
}

// Handle returns the current window status for every action family.
func (h *QuotaHandler) Handle(ctx context.Context, platformName string) (*QuotaResponse, error) {
	if _, err := h.registry.Get(platformName); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	families := []models.Family{
		models.FamilyLike,
		models.FamilyComment,
		models.FamilyFollow,
		models.FamilyMessage,
	}

	resp := &QuotaResponse{
		Platform: platformName,
		Families: make(map[string]models.QuotaStatus, len(families)),
	}
	for _, f := range families {
		resp.Families[string(f)] = h.store.Check(platformName, f)
	}
	return resp, nil
}
