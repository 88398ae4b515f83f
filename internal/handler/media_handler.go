package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rentfree/internal/download"
	"github.com/hitoshi/rentfree/internal/middleware"
)

// DownloadServiceInterface はメディアハンドラーが必要とするサービスインターフェース。
type DownloadServiceInterface interface {
	Authorize(ctx context.Context, uidb64, fileID, tok, fileName string) (*download.Grant, error)
}

// MediaHandler はプレミアムメディアのHTTPハンドラー。
// 本体はリバースプロキシがX-Accel-Redirectで配信する。
type MediaHandler struct {
	service DownloadServiceInterface
	logger  *slog.Logger
}

// NewMediaHandler はMediaHandlerを生成する。
func NewMediaHandler(service DownloadServiceInterface, logger *slog.Logger) *MediaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaHandler{service: service, logger: logger}
}

// Serve はダウンロードを認可し、内部リダイレクト先を返す。
// GET /premium_media/{uidb64}/{fileID}/{token}/{fileName}
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	grant, err := h.service.Authorize(r.Context(),
		chi.URLParam(r, "uidb64"),
		chi.URLParam(r, "fileID"),
		chi.URLParam(r, "token"),
		chi.URLParam(r, "fileName"),
	)
	if err != nil {
		status, apiErr := middleware.ClassifyError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("メディアの認可に失敗しました", slog.String("error", err.Error()))
		}
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	w.Header().Set("X-Accel-Redirect", grant.RedirectPath)
	w.Header().Set("Cache-Control", premiumCacheControl)
	w.WriteHeader(http.StatusOK)
}
