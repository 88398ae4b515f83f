package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rentfree/internal/access"
	"github.com/hitoshi/rentfree/internal/billing"
	"github.com/hitoshi/rentfree/internal/config"
	"github.com/hitoshi/rentfree/internal/content"
	"github.com/hitoshi/rentfree/internal/database"
	"github.com/hitoshi/rentfree/internal/download"
	"github.com/hitoshi/rentfree/internal/feed"
	"github.com/hitoshi/rentfree/internal/logger"
	"github.com/hitoshi/rentfree/internal/metrics"
	"github.com/hitoshi/rentfree/internal/repository"
	"github.com/hitoshi/rentfree/internal/rss"
	"github.com/hitoshi/rentfree/internal/security"
	"github.com/hitoshi/rentfree/internal/segment"
	"github.com/hitoshi/rentfree/internal/token"
	"github.com/hitoshi/rentfree/internal/user"
)

// dbPingTimeout は起動時の接続確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// repositories はPostgreSQL実装のリポジトリ一式。
type repositories struct {
	contents  *repository.PostgresContentRepo
	indexes   *repository.PostgresIndexPageRepo
	media     *repository.PostgresMediaRepo
	downloads *repository.PostgresDownloadRepo
	segments  *repository.PostgresSegmentRepo
	users     *repository.PostgresUserRepo
}

func newRepositories(db *sql.DB) *repositories {
	return &repositories{
		contents:  repository.NewPostgresContentRepo(db),
		indexes:   repository.NewPostgresIndexPageRepo(db),
		media:     repository.NewPostgresMediaRepo(db),
		downloads: repository.NewPostgresDownloadRepo(db),
		segments:  repository.NewPostgresSegmentRepo(db),
		users:     repository.NewPostgresUserRepo(db),
	}
}

// services はドメインサービス一式。
type services struct {
	signer   *token.Signer
	prober   *content.Prober
	content  *content.Service
	feed     *feed.Service
	download *download.Service
	billing  *billing.Service
	user     *user.Service
}

// newServices は設定とリポジトリから全サービスをワイヤリングする。
// collectorがnilならメトリクスを記録しない。
func newServices(cfg *config.Config, repos *repositories, collector metrics.MetricsCollector, log *slog.Logger) *services {
	if collector == nil {
		collector = metrics.Nop
	}

	// 1. セキュリティ
	sanitizer := security.NewFeedSanitizer()
	ssrfGuard := security.NewSSRFGuard()
	signer := token.NewSigner(cfg.TokenSecret, cfg.TokenTimeout)

	// 2. コンテンツ
	prober := content.NewProber(ssrfGuard, cfg.ProbeTimeout)
	contentService := content.NewService(repos.contents, prober, logger.ForComponent(log, "content"))

	// 3. アクセス制御
	resolver := segment.NewResolver(repos.segments, logger.ForComponent(log, "segment"))
	gate := access.NewGate(repos.contents, repos.segments, resolver, logger.ForComponent(log, "access"))

	// 4. フィード
	feedService := feed.NewService(
		repos.indexes, repos.users, gate, signer,
		rss.NewAdapter(sanitizer), rss.NewSerializer(sanitizer),
		feed.Settings{
			BaseURL:           cfg.BaseURL,
			Language:          cfg.LanguageCode,
			DefaultOwnerEmail: cfg.DefaultOwnerEmail,
		},
		collector, logger.ForComponent(log, "feed"),
	)

	// 5. プレミアムメディア
	downloadService := download.NewService(
		repos.media, repos.users, repos.downloads, signer,
		cfg.ProtectedMediaPrefix, collector, logger.ForComponent(log, "download"),
	)

	// 6. 課金
	verifier := billing.NewVerifier(cfg.BillingWebhookSecret, cfg.WebhookTolerance)
	billingService := billing.NewService(repos.users, verifier, collector, logger.ForComponent(log, "billing"))

	return &services{
		signer:   signer,
		prober:   prober,
		content:  contentService,
		feed:     feedService,
		download: downloadService,
		billing:  billingService,
		user:     user.NewService(repos.users),
	}
}
