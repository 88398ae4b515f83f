// Package download はプレミアムメディアのダウンロード認可と記録を提供する。
package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/rentfree/internal/metrics"
	"github.com/hitoshi/rentfree/internal/model"
	"github.com/hitoshi/rentfree/internal/token"
)

// DefaultProtectedPrefix は内部リダイレクト先のデフォルトプレフィックス。
const DefaultProtectedPrefix = "/media_download/"

// MediaFinder はメディアの取得インターフェース。
type MediaFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Media, error)
}

// UserFinder はユーザーの取得インターフェース。
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// Counter はダウンロード回数の原子的な加算インターフェース。
type Counter interface {
	Increment(ctx context.Context, userID, mediaID int64, at time.Time) (int64, error)
}

// TokenVerifier はプレミアムトークンの検証インターフェース。
type TokenVerifier interface {
	Verify(user *model.User, token string) bool
}

// Grant は認可済みダウンロード。
type Grant struct {
	Media *model.Media
	// RedirectPath はリバースプロキシに渡す内部リダイレクト先。
	RedirectPath string
	// Count は加算後のダウンロード回数。
	Count int64
}

// Service はダウンロード認可サービス。
type Service struct {
	media    MediaFinder
	users    UserFinder
	counter  Counter
	verifier TokenVerifier
	prefix   string
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceを生成する。prefixが空ならDefaultProtectedPrefixを使う。
func NewService(
	media MediaFinder,
	users UserFinder,
	counter Counter,
	verifier TokenVerifier,
	prefix string,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if prefix == "" {
		prefix = DefaultProtectedPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if collector == nil {
		collector = metrics.Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		media:    media,
		users:    users,
		counter:  counter,
		verifier: verifier,
		prefix:   prefix,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}
}

// Authorize はダウンロードを認可し、回数を加算して内部リダイレクト先を返す。
//
// 手順:
//  1. メディアの存在とファイル名の一致を確認（不一致は model.ErrMediaNotFound）
//  2. uidb64・ユーザー・トークン・購読ステータス（active）を確認（失敗は model.ErrAccessDenied）
//  3. (user, media) のカウンタを原子的に加算
func (s *Service) Authorize(ctx context.Context, uidb64, fileID, tok, fileName string) (*Grant, error) {
	id, err := strconv.ParseInt(fileID, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("メディアID %q: %w", fileID, model.ErrMediaNotFound)
	}

	m, err := s.media.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	if m == nil || m.FileName != fileName {
		return nil, fmt.Errorf("メディア %d: %w", id, model.ErrMediaNotFound)
	}

	user, err := s.authorizeUser(ctx, uidb64, tok)
	if err != nil {
		return nil, err
	}

	redirect, err := s.redirectPath(m.URL)
	if err != nil {
		return nil, err
	}

	count, err := s.counter.Increment(ctx, user.ID, m.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("ダウンロード回数の記録に失敗しました: %w", err)
	}
	s.metrics.RecordMediaDownload()

	s.logger.Info("プレミアムメディアのダウンロードを許可しました",
		slog.Int64("user_id", user.ID),
		slog.Int64("media_id", m.ID),
		slog.Int64("count", count),
	)
	return &Grant{Media: m, RedirectPath: redirect, Count: count}, nil
}

func (s *Service) authorizeUser(ctx context.Context, uidb64, tok string) (*model.User, error) {
	email, err := token.DecodeUID(uidb64)
	if err != nil {
		return nil, s.deny("uid")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, s.deny("user")
	}
	if !s.verifier.Verify(user, tok) {
		return nil, s.deny("token")
	}
	if !user.HasActiveSubscription() {
		return nil, s.deny("subscription")
	}
	return user, nil
}

func (s *Service) deny(reason string) error {
	s.metrics.RecordFeedDenied("media_" + reason)
	s.logger.Warn("プレミアムメディアへのアクセスを拒否しました", slog.String("reason", reason))
	return fmt.Errorf("プレミアムメディア: %w", model.ErrAccessDenied)
}

// redirectPath は "プレフィックス + スキーム + / + スキームを除いたURL" を返す。
func (s *Service) redirectPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("メディアの保存先URLが不正です: %q", rawURL)
	}
	return s.prefix + u.Scheme + "/" + strings.TrimPrefix(rawURL, u.Scheme+"://"), nil
}
