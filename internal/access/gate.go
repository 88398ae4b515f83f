// Package access はセグメント解決結果とパーソナライズ情報から、
// ユーザーが閲覧できるコンテンツ集合を組み立てる。
package access

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hitoshi/rentfree/internal/model"
	"github.com/hitoshi/rentfree/internal/repository"
	"github.com/hitoshi/rentfree/internal/segment"
)

// SegmentResolver はユーザーのセグメント解決インターフェース。
type SegmentResolver interface {
	Resolve(ctx context.Context, user *model.User) segment.Resolution
}

// VariantSource はセグメントに紐づくバリアント対応の取得元。
type VariantSource interface {
	ListVariantsBySegments(ctx context.Context, segmentIDs []int64) ([]model.Variant, error)
}

// Result はアクセスゲートの出力。
type Result struct {
	// Public は結合モード時のみ設定される公開コンテンツ。
	Public []model.Item
	// Private はユーザー向けパーソナライズ版。
	Private []model.Item

	Resolution segment.Resolution
	Combined   bool
}

// Matched はユーザーがいずれかのセグメントに一致したかを返す。
// falseの場合、呼び出し側は公開コンテンツのみを使う。
func (r *Result) Matched() bool {
	return r.Resolution.Matched()
}

// Visible はPrivateとPublicの和集合を公開日降順で返す。
func (r *Result) Visible() []model.Item {
	items := make([]model.Item, 0, len(r.Private)+len(r.Public))
	items = append(items, r.Private...)
	items = append(items, r.Public...)
	SortByPublishDate(items)
	return items
}

// SortByPublishDate は公開日降順、同時刻はID降順に並べる。
func SortByPublishDate(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Base(), items[j].Base()
		if !a.PublishDate.Equal(b.PublishDate) {
			return a.PublishDate.After(b.PublishDate)
		}
		return a.ID > b.ID
	})
}

// Gate はバリアントアクセスゲート。
type Gate struct {
	content  repository.ContentRepository
	variants VariantSource
	resolver SegmentResolver
	logger   *slog.Logger
}

// NewGate はGateを生成する。
func NewGate(content repository.ContentRepository, variants VariantSource, resolver SegmentResolver, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		content:  content,
		variants: variants,
		resolver: resolver,
		logger:   logger,
	}
}

// PublicItems はインデックス配下の公開中カノニカルコンテンツを返す。
// omitPreviewsが真ならプレビューエピソードを除く。
func (g *Gate) PublicItems(ctx context.Context, index *model.IndexPage, omitPreviews bool) ([]model.Item, error) {
	items, err := g.content.Query(ctx, repository.ContentQuery{
		IndexPageID:     index.ID,
		LiveOnly:        true,
		ExcludeVariants: true,
		ExcludePreviews: omitPreviews,
	})
	if err != nil {
		return nil, fmt.Errorf("公開コンテンツの取得に失敗しました: %w", err)
	}
	return items, nil
}

// BuildQueryset はユーザーが閲覧できる公開/非公開のコンテンツ集合を組み立てる。
//
//  1. ユーザーのセグメントを解決する
//  2. 一致した各セグメントのバリアント対応からcanonical_id集合とvariant_id集合を集める
//  3. 結合モードでは、バリアントを持つカノニカルを公開側から除外する
//  4. 非結合モードではパーソナライズ版のみを返す
//
// セグメントに一致しない場合は空のResultを返す（Matched() == false）。
// バリアントの取得失敗も一致なしに縮退させる。
func (g *Gate) BuildQueryset(ctx context.Context, index *model.IndexPage, user *model.User, combine bool) (*Result, error) {
	res := g.resolver.Resolve(ctx, user)
	result := &Result{Resolution: res, Combined: combine}
	if !res.Matched() {
		return result, nil
	}

	variants, err := g.variants.ListVariantsBySegments(ctx, res.SegmentIDs.Sorted())
	if err != nil {
		g.logger.Warn("バリアントの取得に失敗したため一致なしとして扱います",
			slog.String("error", err.Error()),
		)
		result.Resolution = segment.Resolution{
			SegmentIDs: segment.IDSet{},
			State:      segment.StateLookupFailed,
			Err:        err,
		}
		return result, nil
	}

	publicIDs, privateIDs := splitVariants(variants)

	private, err := g.content.Query(ctx, repository.ContentQuery{
		IndexPageID: index.ID,
		LiveOnly:    true,
		IDs:         privateIDs.Sorted(),
	})
	if err != nil {
		return nil, fmt.Errorf("パーソナライズコンテンツの取得に失敗しました: %w", err)
	}
	result.Private = onePerCanonical(private)

	if combine {
		public, err := g.content.Query(ctx, repository.ContentQuery{
			IndexPageID:     index.ID,
			LiveOnly:        true,
			ExcludeVariants: true,
			ExcludeIDs:      publicIDs.Sorted(),
		})
		if err != nil {
			return nil, fmt.Errorf("公開コンテンツの取得に失敗しました: %w", err)
		}
		result.Public = public
	}

	return result, nil
}

// splitVariants はバリアント対応をカノニカルID集合とバリアントID集合に分ける。
func splitVariants(variants []model.Variant) (canonical, private segment.IDSet) {
	canonical, private = segment.IDSet{}, segment.IDSet{}
	for _, v := range variants {
		canonical.Add(v.CanonicalID)
		private.Add(v.VariantID)
	}
	return canonical, private
}

// onePerCanonical は同じカノニカルを持つバリアントが複数あれば最小IDのみ残す。
// 複数セグメントに一致したユーザーのフィードでGUIDが重複しないようにする。
func onePerCanonical(items []model.Item) []model.Item {
	chosen := make(map[int64]model.Item, len(items))
	for _, it := range items {
		key := it.Base().CanonicalID
		if key == 0 {
			key = it.Base().ID
		}
		if prev, ok := chosen[key]; !ok || it.Base().ID < prev.Base().ID {
			chosen[key] = it
		}
	}

	out := make([]model.Item, 0, len(chosen))
	for _, it := range items {
		key := it.Base().CanonicalID
		if key == 0 {
			key = it.Base().ID
		}
		if chosen[key] == it {
			out = append(out, it)
		}
	}
	return out
}
