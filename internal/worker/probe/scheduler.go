// Package probe はリモートメディアのサイズをバックグラウンドで補完する。
// スケジューラとリトライ/バックオフ戦略を含む。
package probe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/rentfree/internal/content"
	"github.com/hitoshi/rentfree/internal/metrics"
	"github.com/hitoshi/rentfree/internal/model"
)

// Store はプローブ対象の取得と結果の保存を行う。
type Store interface {
	ListNeedingProbe(ctx context.Context, limit int) ([]model.Item, error)
	UpdateProbeResult(ctx context.Context, id int64, size int64, probeErrors int, nextProbeAt *time.Time) error
}

// Config はスケジューラの設定。
type Config struct {
	BatchSize      int
	MaxConcurrency int
}

// Scheduler はプローブのスケジューリングと並列制御を行う。
// ティッカーごとに対象コンテンツを取得し、
// semaphoreパターンで最大並列数を制御しながらプローブを実行する。
type Scheduler struct {
	store   Store
	prober  content.MediaProber
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	config  Config
	now     func() time.Time
}

// NewScheduler はSchedulerを生成する。
// BatchSizeが0以下なら50、MaxConcurrencyが0以下なら4を使う。
func NewScheduler(
	store Store,
	prober content.MediaProber,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Scheduler {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if collector == nil {
		collector = metrics.Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:   store,
		prober:  prober,
		metrics: collector,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// Start はinterval間隔でプローブを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("プローブスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.config.MaxConcurrency),
		slog.Int("batch_size", s.config.BatchSize),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("プローブサイクルの実行に失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("プローブスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("プローブサイクルの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce は対象コンテンツを1バッチ取得し、並列でプローブする。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	items, err := s.store.ListNeedingProbe(ctx, s.config.BatchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		s.logger.Debug("プローブ対象のコンテンツはありません")
		return nil
	}

	sem := make(chan struct{}, s.config.MaxConcurrency)
	var wg sync.WaitGroup

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(c *model.Content) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.ProbeOne(ctx, c); err != nil {
				s.logger.Error("プローブ結果の保存に失敗しました",
					slog.Int64("content_id", c.ID),
					slog.String("error", err.Error()),
				)
			}
		}(item.Base())
	}

	wg.Wait()

	s.logger.Info("プローブサイクルが完了しました",
		slog.Int("item_count", len(items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// ProbeOne は1件のリモートメディアをプローブし、結果を保存する。
// 返すエラーは保存の失敗のみ。プローブ自体の失敗はバックオフとして記録する。
func (s *Scheduler) ProbeOne(ctx context.Context, c *model.Content) error {
	var (
		result Result
		size   int64
	)

	res, err := s.prober.Probe(ctx, c.RemoteMediaURL)
	switch {
	case err != nil:
		result = ResultError
		s.logger.Warn("リモートメディアへの接続に失敗しました",
			slog.Int64("content_id", c.ID),
			slog.String("error", err.Error()),
		)
	default:
		result = ClassifyHTTPStatus(res.StatusCode)
		size = res.Size
		if result == ResultOK && size <= 0 {
			// Content-Lengthなし
			result = ResultBackoff
		}
	}

	state := NextState(result, size, c.ProbeErrors, s.now())
	s.metrics.RecordProbe(string(result))

	if result != ResultOK {
		s.logger.Info("リモートメディアのサイズを取得できませんでした",
			slog.Int64("content_id", c.ID),
			slog.String("result", string(result)),
			slog.Int("status", res.StatusCode),
			slog.Int("probe_errors", state.ProbeErrors),
		)
	}

	return s.store.UpdateProbeResult(ctx, c.ID, state.Size, state.ProbeErrors, state.NextProbeAt)
}
