package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

const archiveRoot = "archive/"

// ArchiveHandler lists and downloads the archives of ended instances.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger.With(slog.String("handler", "archives"))}
}

// List returns the archive files, optionally under a sub prefix such as
// "foxbit-otc/3".
// GET /api/archives?prefix=foxbit-otc
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := strings.Trim(r.URL.Query().Get("prefix"), "/")
	if strings.Contains(prefix, "..") {
		writeError(w, http.StatusBadRequest, "invalid prefix")
		return
	}
	if prefix != "" {
		prefix += "/"
	}

	infos, err := h.blobs.List(r.Context(), archiveRoot+prefix)
	if err != nil {
		writeServiceError(w, r, h.logger, "list archives", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}

// Download streams one archive file.
// GET /api/archives/{path...}
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")
	clean := path.Clean("/" + rel)
	if rel == "" || clean != "/"+rel {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}

	body, err := h.blobs.Get(r.Context(), archiveRoot+rel)
	if err != nil {
		writeServiceError(w, r, h.logger, "download archive", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(rel)+`"`)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive download interrupted",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
	}
}
