package handler

import (
	"log/slog"
	"net/http"

	"github.com/mattvy/chartgrid/internal/chart"
	"github.com/mattvy/chartgrid/internal/domain"
)

// SettingsHandler serves the shared analysis settings, owned by the registry.
type SettingsHandler struct {
	registry *chart.Registry
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(registry *chart.Registry, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		registry: registry,
		logger:   logHandler(logger, "settings"),
	}
}

// GetSettings returns the current shared analysis settings.
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Settings())
}

// UpdateSettings replaces the shared settings and broadcasts them to every
// panel. The broadcast waits for all reloads to settle; per-panel failures
// are tolerated and visible in the returned panel snapshot.
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.AnalysisSettings
	if err := decodeBody(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if settings.SwingEnabled &&
		(settings.ComparisonWindow < 1 || settings.ForwardWindow < 1 || settings.AnalysisWindow < 1) {
		writeError(w, http.StatusBadRequest, "swing windows must be at least 1")
		return
	}

	h.registry.BroadcastSettings(r.Context(), settings)

	writeJSON(w, http.StatusOK, map[string]any{
		"settings": h.registry.Settings(),
		"panels":   h.registry.Snapshot(),
	})
}
