package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/rentfree/internal/config"
	"github.com/hitoshi/rentfree/internal/handler"
	"github.com/hitoshi/rentfree/internal/logger"
	"github.com/hitoshi/rentfree/internal/metrics"
	"github.com/hitoshi/rentfree/internal/middleware"
	"github.com/hitoshi/rentfree/internal/worker/probe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// newRegistry はプロセス・Goランタイムのコレクタを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はHTTPサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 3. リポジトリとサービス
	log := slog.Default()
	svc := newServices(cfg, newRepositories(db), collector, log)

	// 4. レート制限
	feedLimiter := middleware.NewRateLimiter(middleware.PerMinute("feed", cfg.RateLimitFeed))
	defer feedLimiter.Stop()
	mediaLimiter := middleware.NewRateLimiter(middleware.PerMinute("media", cfg.RateLimitMedia))
	defer mediaLimiter.Stop()

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:   db,
		Gatherer:        reg,
		Metrics:         collector,
		Logger:          logger.ForComponent(log, "http"),
		FeedLimiter:     feedLimiter,
		MediaLimiter:    mediaLimiter,
		FeedService:     svc.feed,
		CacheMaxAge:     cfg.FeedCacheMaxAge,
		DownloadService: svc.download,
		BillingService:  svc.billing,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、リモートメディアのプローブスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log := slog.Default()
	repos := newRepositories(db)
	svc := newServices(cfg, repos, metrics.Nop, log)

	scheduler := probe.NewScheduler(
		repos.contents, svc.prober, metrics.Nop,
		logger.ForComponent(log, "probe"),
		probe.Config{
			BatchSize:      cfg.ProbeBatchSize,
			MaxConcurrency: cfg.ProbeMaxConcurrent,
		},
	)

	slog.Info("worker starting",
		slog.Duration("probe_interval", cfg.ProbeInterval),
		slog.Int("max_concurrent", cfg.ProbeMaxConcurrent),
		slog.Int("batch_size", cfg.ProbeBatchSize),
	)

	// プローブスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.ProbeInterval)

	slog.Info("worker stopped gracefully")
	return nil
}
