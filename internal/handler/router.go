package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/rentfree/internal/metrics"
	"github.com/hitoshi/rentfree/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 運用
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer
	Metrics       metrics.MetricsCollector
	Logger        *slog.Logger

	// レート制限（nilなら制限しない）
	FeedLimiter  *middleware.RateLimiter
	MediaLimiter *middleware.RateLimiter

	// フィード
	FeedService FeedServiceInterface
	CacheMaxAge time.Duration

	// プレミアムメディア
	DownloadService DownloadServiceInterface

	// 課金Webhook
	BillingService BillingServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders
//
// フィードはクライアントIP単位、プレミアムメディアはuidb64単位でレート制限する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	feedHandler := NewFeedHandler(deps.FeedService, deps.CacheMaxAge, logger)
	mediaHandler := NewMediaHandler(deps.DownloadService, logger)
	billingHandler := NewBillingHandler(deps.BillingService, logger)

	// --- 運用ルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker).ServeHTTP)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- フィード ---
	r.Group(func(r chi.Router) {
		if deps.FeedLimiter != nil {
			r.Use(deps.FeedLimiter.Middleware(middleware.ClientIPKey))
		}
		r.Get("/{slug}/rss/", feedHandler.PublicFeed)
		r.Get("/{slug}/premiumfeed/{uidb64}/{token}/", feedHandler.PremiumFeed)
	})

	// --- プレミアムメディア ---
	r.Group(func(r chi.Router) {
		if deps.MediaLimiter != nil {
			r.Use(deps.MediaLimiter.Middleware(middleware.URLParamKey("uidb64")))
		}
		r.Get("/premium_media/{uidb64}/{fileID}/{token}/{fileName}", mediaHandler.Serve)
	})

	// --- 課金Webhook ---
	r.Post("/webhooks/billing", billingHandler.Receive)

	return r
}
