package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mattvy/chartgrid/internal/domain"
)

// defaultArchivePrefix matches the key layout the trade archiver writes under.
const defaultArchivePrefix = "archive/"

// BlobLister enumerates stored objects under a prefix.
type BlobLister interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// ArchivesHandler serves the trade archive listing backed by object storage.
type ArchivesHandler struct {
	lister BlobLister
	logger *slog.Logger
}

// NewArchivesHandler creates an ArchivesHandler.
func NewArchivesHandler(lister BlobLister, logger *slog.Logger) *ArchivesHandler {
	return &ArchivesHandler{
		lister: lister,
		logger: logHandler(logger, "archives"),
	}
}

// ListArchives returns the stored archive objects, optionally filtered by a
// ?prefix= query parameter.
// GET /api/archives
func (h *ArchivesHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = defaultArchivePrefix
	}

	infos, err := h.lister.List(r.Context(), prefix)
	if err != nil {
		h.logger.Error("list archives failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}
