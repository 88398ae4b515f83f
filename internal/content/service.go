package content

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/rentfree/internal/model"
	"github.com/hitoshi/rentfree/internal/repository"
)

// MediaProber はリモートメディアのサイズ取得インターフェース。
type MediaProber interface {
	Probe(ctx context.Context, rawURL string) (ProbeResult, error)
}

// Service はコンテンツの保存処理を提供する。
// 検証・派生値の計算・リモートメディアのサイズ取得を行ってから永続化する。
type Service struct {
	repo   repository.ContentRepository
	prober MediaProber
	logger *slog.Logger
}

// NewService はServiceを生成する。proberがnilの場合はサイズ取得をワーカーに任せる。
func NewService(repo repository.ContentRepository, prober MediaProber, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, prober: prober, logger: logger}
}

// Save はコンテンツを検証して保存する。
// 不変条件違反はmodel.ErrMalformedContentをラップして返し、何も書き込まない。
func (s *Service) Save(ctx context.Context, item model.Item) error {
	if err := Validate(item); err != nil {
		return err
	}

	Derive(item)

	c := item.Base()
	if s.prober != nil && c.HasRemoteMedia() && !model.IsStreamingOnly(c.RemoteMediaType) && c.RemoteMediaSize == 0 {
		res, err := s.prober.Probe(ctx, c.RemoteMediaURL)
		switch {
		case err != nil:
			s.logger.Warn("リモートメディアのサイズ取得に失敗しました",
				slog.String("url", c.RemoteMediaURL),
				slog.String("error", err.Error()),
			)
		case res.Size > 0:
			c.RemoteMediaSize = res.Size
		}
	}

	if err := s.repo.Save(ctx, item); err != nil {
		return fmt.Errorf("コンテンツの保存に失敗しました: %w", err)
	}

	s.logger.Info("コンテンツを保存しました",
		slog.Int64("content_id", c.ID),
		slog.String("kind", string(item.Kind())),
		slog.String("slug", c.Slug),
	)
	return nil
}
