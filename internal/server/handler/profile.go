package handler

import (
	"log/slog"
	"net/http"

	"github.com/mattvy/chartgrid/internal/service"
)

// ProfileHandler serves volume profile endpoints.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logHandler(logger, "profile"),
	}
}

// GetProfile builds and returns the current volume profile.
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Profile(r.Context())
	if err != nil {
		h.logger.Error("build profile failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// SnapshotProfile builds the current profile and uploads it to object
// storage.
// POST /api/profile/snapshot
func (h *ProfileHandler) SnapshotProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("profile snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
