package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mattvy/chartgrid/internal/chart"
	"github.com/mattvy/chartgrid/internal/domain"
)

// PanelHandler serves the panel lifecycle endpoints backed by the registry.
type PanelHandler struct {
	registry *chart.Registry
	logger   *slog.Logger
}

// NewPanelHandler creates a PanelHandler.
func NewPanelHandler(registry *chart.Registry, logger *slog.Logger) *PanelHandler {
	return &PanelHandler{
		registry: registry,
		logger:   logHandler(logger, "panels"),
	}
}

// ListPanels returns the live panels in grid order.
// GET /api/panels
func (h *PanelHandler) ListPanels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"panels": h.registry.Snapshot(),
	})
}

// addPanelRequest is the body of POST /api/panels.
type addPanelRequest struct {
	TimeframeID string `json:"timeframe_id"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// AddPanel creates a new panel and waits for its initial load to settle.
// POST /api/panels
func (h *PanelHandler) AddPanel(w http.ResponseWriter, r *http.Request) {
	var req addPanelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := h.registry.AddResource(r.Context(), req.TimeframeID, chart.AddOptions{
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownTimeframe),
			errors.Is(err, domain.ErrInvalidDimensions):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("add panel failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// RemovePanel destroys a panel. Removing an unknown panel succeeds.
// DELETE /api/panels/{id}
func (h *PanelHandler) RemovePanel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	h.registry.RemoveResource(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// changeTimeframeRequest is the body of PUT /api/panels/{id}/timeframe.
type changeTimeframeRequest struct {
	TimeframeID string `json:"timeframe_id"`
}

// ChangeTimeframe switches a panel to another timeframe and reloads it.
// PUT /api/panels/{id}/timeframe
func (h *PanelHandler) ChangeTimeframe(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req changeTimeframeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.registry.ReconfigureTimeframe(r.Context(), id, req.TimeframeID); err != nil {
		if errors.Is(err, domain.ErrUnknownTimeframe) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("change timeframe failed",
			slog.String("panel", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// resizePanelRequest is the body of PUT /api/panels/{id}/size.
type resizePanelRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ResizePanel records new panel dimensions. Resizing never reloads data and
// resizing an unknown panel is a no-op.
// PUT /api/panels/{id}/size
func (h *PanelHandler) ResizePanel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req resizePanelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Width < 1 || req.Height < 1 {
		writeError(w, http.StatusBadRequest, "width and height must be at least 1")
		return
	}

	h.registry.ResizeResource(id, req.Width, req.Height)
	w.WriteHeader(http.StatusNoContent)
}

// GetLayout returns the grid shape and the live panels in grid order.
// GET /api/layout
func (h *PanelHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": h.registry.Columns(),
		"panels":  h.registry.Snapshot(),
	})
}

// ReloadAll reloads every panel concurrently, tolerating per-panel failures.
// POST /api/panels/reload
func (h *PanelHandler) ReloadAll(w http.ResponseWriter, r *http.Request) {
	h.registry.ReloadAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"panels": h.registry.Snapshot(),
	})
}

// ListTimeframes returns the timeframe catalog.
// GET /api/timeframes
func (h *PanelHandler) ListTimeframes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"timeframes": domain.Timeframes(),
	})
}
