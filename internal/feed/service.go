// Package feed はインデックスページ単位のRSSフィード生成を提供する。
// 公開フィードとプレミアム（署名付き）フィードのアクセス判定・コンテンツ選択・直列化を統括する。
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hitoshi/rentfree/internal/access"
	"github.com/hitoshi/rentfree/internal/metrics"
	"github.com/hitoshi/rentfree/internal/model"
	"github.com/hitoshi/rentfree/internal/rss"
	"github.com/hitoshi/rentfree/internal/token"
)

// 拒否理由（メトリクスのラベル）。外部には返さない。
const (
	denyUID          = "uid"
	denyUser         = "user"
	denyToken        = "token"
	denySubscription = "subscription"
)

// IndexFinder はインデックスページの取得インターフェース。
type IndexFinder interface {
	FindBySlug(ctx context.Context, slug string) (*model.IndexPage, error)
}

// UserFinder はユーザーの取得インターフェース。
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// ItemGate はアクセスゲートのインターフェース。
type ItemGate interface {
	PublicItems(ctx context.Context, index *model.IndexPage, omitPreviews bool) ([]model.Item, error)
	BuildQueryset(ctx context.Context, index *model.IndexPage, user *model.User, combine bool) (*access.Result, error)
}

// TokenSigner はプレミアムトークンの発行・検証インターフェース。
type TokenSigner interface {
	Sign(user *model.User) string
	Verify(user *model.User, token string) bool
}

// Settings はチャンネル生成に使うサイト設定。
type Settings struct {
	BaseURL           string
	Language          string
	DefaultOwnerEmail string
}

// Document は生成済みのフィード。
type Document struct {
	Body      []byte
	ETag      string
	Flavor    rss.Flavor
	Premium   bool
	ItemCount int
}

// Service はフィード生成サービス。
type Service struct {
	indexes    IndexFinder
	users      UserFinder
	gate       ItemGate
	signer     TokenSigner
	adapter    *rss.Adapter
	serializer *rss.Serializer
	settings   Settings
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewService はServiceを生成する。collectorがnilならメトリクスを記録しない。
func NewService(
	indexes IndexFinder,
	users UserFinder,
	gate ItemGate,
	signer TokenSigner,
	adapter *rss.Adapter,
	serializer *rss.Serializer,
	settings Settings,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	return &Service{
		indexes:    indexes,
		users:      users,
		gate:       gate,
		signer:     signer,
		adapter:    adapter,
		serializer: serializer,
		settings:   settings,
		metrics:    collector,
		logger:     logger,
	}
}

// PublicFeed は認証なしの公開フィードを生成する。
// インデックスが存在しない、または公開コンテンツが0件の場合は model.ErrInvalidFeedState を返す。
func (s *Service) PublicFeed(ctx context.Context, slug string) (*Document, error) {
	index, err := s.findIndex(ctx, slug)
	if err != nil {
		return nil, err
	}

	items, err := s.gate.PublicItems(ctx, index, index.OmitPreviews)
	if err != nil {
		return nil, err
	}

	rc := rss.RequestContext{Index: index, BaseURL: s.settings.BaseURL}
	doc, err := s.render(index, items, rc, s.PublicFeedURL(index.Slug))
	if err != nil {
		return nil, err
	}
	s.metrics.RecordFeedServed(string(doc.Flavor), "public")
	return doc, nil
}

// PremiumFeed は署名付きURLのプレミアムフィードを生成する。
//
// uidb64・ユーザー・トークン・購読状態のいずれかが不正なら model.ErrAccessDenied を返す。
// どの検査で失敗したかはログとメトリクスにのみ残す。
// ユーザーがどのセグメントにも一致しない場合は公開コンテンツにフォールバックする。
func (s *Service) PremiumFeed(ctx context.Context, slug, uidb64, tok string) (*Document, error) {
	index, err := s.findIndex(ctx, slug)
	if err != nil {
		return nil, err
	}

	user, err := s.authorize(ctx, uidb64, tok)
	if err != nil {
		return nil, err
	}

	result, err := s.gate.BuildQueryset(ctx, index, user, index.CombinePrivate)
	if err != nil {
		return nil, err
	}

	var items []model.Item
	if result.Matched() {
		items = result.Visible()
	} else {
		s.logger.Info("セグメントに一致しないため公開コンテンツを配信します",
			slog.Int64("user_id", user.ID),
			slog.String("state", result.Resolution.State.String()),
		)
		items, err = s.gate.PublicItems(ctx, index, false)
		if err != nil {
			return nil, err
		}
	}

	rc := rss.RequestContext{
		Index:   index,
		BaseURL: s.settings.BaseURL,
		Private: true,
		UIDB64:  uidb64,
		Token:   tok,
	}
	doc, err := s.render(index, items, rc, s.premiumURL(index.Slug, uidb64, tok))
	if err != nil {
		return nil, err
	}
	doc.Premium = true
	s.metrics.RecordFeedServed(string(doc.Flavor), "premium")
	return doc, nil
}

// PremiumFeedURL はユーザー向けのプレミアムフィードURLを発行する。
func (s *Service) PremiumFeedURL(ctx context.Context, email, slug string) (string, error) {
	index, err := s.findIndex(ctx, slug)
	if err != nil {
		return "", err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("ユーザー %q が見つかりません", email)
	}
	return s.premiumURL(index.Slug, token.EncodeUID(user.Email), s.signer.Sign(user)), nil
}

// PublicFeedURL は公開フィードのURLを返す。
func (s *Service) PublicFeedURL(slug string) string {
	return s.settings.BaseURL + "/" + slug + "/rss/"
}

func (s *Service) premiumURL(slug, uidb64, tok string) string {
	return s.settings.BaseURL + "/" + slug + "/premiumfeed/" + uidb64 + "/" + tok + "/"
}

func (s *Service) findIndex(ctx context.Context, slug string) (*model.IndexPage, error) {
	index, err := s.indexes.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("インデックスページの取得に失敗しました: %w", err)
	}
	if index == nil {
		return nil, fmt.Errorf("インデックスページ %q が見つかりません: %w", slug, model.ErrInvalidFeedState)
	}
	return index, nil
}

// authorize はuidb64とトークンからプレミアム購読者を特定する。
// ユーザーストアの障害はアクセス拒否ではなくエラーとして返す。
func (s *Service) authorize(ctx context.Context, uidb64, tok string) (*model.User, error) {
	email, err := token.DecodeUID(uidb64)
	if err != nil {
		return nil, s.deny(denyUID)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, s.deny(denyUser)
	}
	if !s.signer.Verify(user, tok) {
		return nil, s.deny(denyToken)
	}
	if !user.IsPremium() {
		return nil, s.deny(denySubscription)
	}
	return user, nil
}

func (s *Service) deny(reason string) error {
	s.metrics.RecordFeedDenied(reason)
	s.logger.Warn("プレミアムフィードへのアクセスを拒否しました", slog.String("reason", reason))
	return fmt.Errorf("プレミアムフィード: %w", model.ErrAccessDenied)
}

// render はアイテムを変換して直列化する。0件は model.ErrInvalidFeedState。
func (s *Service) render(index *model.IndexPage, items []model.Item, rc rss.RequestContext, selfLink string) (*Document, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("インデックスページ %q に配信対象がありません: %w", index.Slug, model.ErrInvalidFeedState)
	}

	start := time.Now()
	ch := s.channel(index, items, rc.Private, selfLink)
	body, err := s.serializer.Serialize(ch, s.adapter.AdaptAll(items, rc))
	if err != nil {
		s.logger.Error("フィードの生成に失敗しました",
			slog.String("index", index.Slug),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.metrics.RecordFeedGeneration(time.Since(start))

	return &Document{
		Body:      body,
		ETag:      ETag(body),
		Flavor:    ch.Flavor,
		ItemCount: len(items),
	}, nil
}

// channel はインデックス設定からチャンネルメタデータを組み立てる。
func (s *Service) channel(index *model.IndexPage, items []model.Item, premium bool, selfLink string) rss.Channel {
	title := index.FeedTitle()
	ch := rss.Channel{
		Flavor:        flavorOf(index),
		Title:         title,
		Link:          s.indexLink(index),
		SelfLink:      selfLink,
		Language:      s.settings.Language,
		Copyright:     copyright(index, title, items),
		LastBuildDate: latest(items),
		TTL:           index.RSSTTL,
		ImageURL:      index.ImageURL,
	}
	if premium && index.PremiumImageURL != "" {
		ch.ImageURL = index.PremiumImageURL
	}

	if ch.Flavor == rss.FlavorArticle {
		ch.Description = index.RSSDescription
		ch.AuthorEmail = index.AuthorEmail
		ch.EditorEmail = index.EditorEmail
		if len(index.Tags) > 0 {
			ch.Categories = []string{strings.Join(index.Tags, "/")}
		}
		return ch
	}

	ch.Description = firstNonEmpty(index.RSSItunesDescription, index.RSSDescription)
	ch.ItunesType = index.ItunesType
	ch.ItunesAuthor = firstNonEmpty(index.ItunesAuthor, title)
	ch.OwnerName = firstNonEmpty(index.ItunesOwner, title)
	ch.OwnerEmail = firstNonEmpty(index.ItunesOwnerEmail, s.settings.DefaultOwnerEmail)
	ch.PrimaryCategory = index.ItunesPrimaryCategory
	ch.PrimarySubcategory = index.ItunesPrimarySubcategory
	ch.SecondaryCategory = index.ItunesSecondaryCategory
	ch.SecondarySubcategory = index.ItunesSecondarySubcategory
	ch.GoogleCategory = index.GoogleCategory
	ch.Explicit = index.Explicit
	ch.PreviewText = index.PreviewText
	return ch
}

func (s *Service) indexLink(index *model.IndexPage) string {
	switch {
	case index.URL == "":
		return s.settings.BaseURL + "/"
	case strings.HasPrefix(index.URL, "http://"), strings.HasPrefix(index.URL, "https://"):
		return index.URL
	default:
		return s.settings.BaseURL + "/" + strings.TrimLeft(index.URL, "/")
	}
}

func flavorOf(index *model.IndexPage) rss.Flavor {
	if spec, ok := model.LookupKind(index.Kind); ok && !spec.Podcast {
		return rss.FlavorArticle
	}
	return rss.FlavorPodcast
}

// copyright は "最古年[-最新年], 表記" を返す。
func copyright(index *model.IndexPage, title string, items []model.Item) string {
	holder := firstNonEmpty(index.Copyright, title)
	oldest, newest := items[0].Base().PublishDate, items[0].Base().PublishDate
	for _, it := range items[1:] {
		d := it.Base().PublishDate
		if d.Before(oldest) {
			oldest = d
		}
		if d.After(newest) {
			newest = d
		}
	}
	if oldest.Year() == newest.Year() {
		return strconv.Itoa(newest.Year()) + ", " + holder
	}
	return strconv.Itoa(oldest.Year()) + "-" + strconv.Itoa(newest.Year()) + ", " + holder
}

func latest(items []model.Item) time.Time {
	var t time.Time
	for _, it := range items {
		if d := it.Base().PublishDate; d.After(t) {
			t = d
		}
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ETag は本文の強いETagを返す。
func ETag(body []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}
