package api

import (
	"errors"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/CFabianPBB/budget-allocation-app/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DownloadHandler serves the latest result workbook.
type DownloadHandler struct {
	Store  *store.ResultStore
	Logger *zap.Logger
}

// Download handles GET /download-result.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		sendError(w, http.StatusNotFound, "no allocation result available")
		return
	}

	result, err := h.Store.Latest()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusNotFound, "no allocation result available")
			return
		}
		if h.Logger != nil {
			h.Logger.Error("failed to look up allocation result", zap.Error(err))
		}
		sendError(w, http.StatusInternalServerError, "failed to load allocation result")
		return
	}

	f, err := os.Open(result.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			sendError(w, http.StatusNotFound, "no allocation result available")
			return
		}
		sendError(w, http.StatusInternalServerError, "failed to open allocation result")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+store.ResultFileName+`"`)
	if result.RunID != "" {
		w.Header().Set("X-Run-Id", result.RunID)
	}
	http.ServeContent(w, r, store.ResultFileName, result.CreatedAt, f)
}
