package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rentfree/internal/feed"
	"github.com/hitoshi/rentfree/internal/middleware"
)

// RSSContentType はフィードのContent-Type。
const RSSContentType = "application/rss+xml; charset=utf-8"

// premiumCacheControl はユーザー固有のフィードをキャッシュさせないための値。
const premiumCacheControl = "private, no-cache, no-store"

// FeedServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	// PublicFeed は公開フィードを生成する。
	PublicFeed(ctx context.Context, slug string) (*feed.Document, error)
	// PremiumFeed は署名付きURLのプレミアムフィードを生成する。
	PremiumFeed(ctx context.Context, slug, uidb64, tok string) (*feed.Document, error)
}

// FeedHandler はRSSフィード配信のHTTPハンドラー。
type FeedHandler struct {
	service      FeedServiceInterface
	publicMaxAge time.Duration
	logger       *slog.Logger
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service FeedServiceInterface, publicMaxAge time.Duration, logger *slog.Logger) *FeedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHandler{
		service:      service,
		publicMaxAge: publicMaxAge,
		logger:       logger,
	}
}

// PublicFeed は公開フィードを返す。
// GET /{slug}/rss/
func (h *FeedHandler) PublicFeed(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.PublicFeed(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", doc.ETag)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.publicMaxAge.Seconds())))
	if etagMatches(r.Header.Get("If-None-Match"), doc.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeFeed(w, doc)
}

// PremiumFeed はユーザー固有のプレミアムフィードを返す。
// GET /{slug}/premiumfeed/{uidb64}/{token}/
func (h *FeedHandler) PremiumFeed(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.PremiumFeed(r.Context(),
		chi.URLParam(r, "slug"),
		chi.URLParam(r, "uidb64"),
		chi.URLParam(r, "token"),
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", premiumCacheControl)
	writeFeed(w, doc)
}

func (h *FeedHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := middleware.ClassifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("フィードの生成に失敗しました",
			slog.String("slug", chi.URLParam(r, "slug")),
			slog.String("error", err.Error()),
		)
	}
	middleware.WriteErrorResponse(w, status, apiErr)
}

func writeFeed(w http.ResponseWriter, doc *feed.Document) {
	w.Header().Set("Content-Type", RSSContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Body)
}

// etagMatches はIf-None-Matchヘッダーがetagに一致するかを判定する。
// カンマ区切りの複数値、"*"、弱いETag（W/）を受け付ける。
func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
