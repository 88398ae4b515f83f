// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentfree/internal/model"
)

// ContentQuery はコンテンツ検索条件。ゼロ値の項目は条件に含めない。
type ContentQuery struct {
	IndexPageID int64
	LiveOnly    bool
	Tag         string

	// ExcludeVariants はvariantsに登録されたパーソナライズ版を除外する。
	ExcludeVariants bool
	// ExcludePreviews はプレビュー扱いのエピソードを除外する。
	ExcludePreviews bool

	// IDs がnilでなければそのIDに限定する。空スライスなら0件。
	IDs []int64
	// ExcludeIDs に含まれるIDを除外する。
	ExcludeIDs []int64
}

// ContentRepository はコンテンツ（エピソード/記事）の永続化インターフェース。
type ContentRepository interface {
	// Query は条件に一致するコンテンツを公開日降順（同日はID降順）で返す。
	Query(ctx context.Context, q ContentQuery) ([]model.Item, error)

	// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (model.Item, error)

	// Save はコンテンツを作成または更新し、著者・寄稿者も置き換える。
	// 新規作成時はIDを設定する。
	Save(ctx context.Context, item model.Item) error

	// ListNeedingProbe はサイズ未取得のリモートメディアを持つコンテンツを返す。
	ListNeedingProbe(ctx context.Context, limit int) ([]model.Item, error)

	// UpdateProbeResult はリモートメディアのサイズと次回プローブ予定を更新する。
	// sizeが0以下の場合はサイズを更新しない。
	UpdateProbeResult(ctx context.Context, id int64, size int64, probeErrors int, nextProbeAt *time.Time) error
}

// IndexPageRepository はインデックスページの永続化インターフェース。
type IndexPageRepository interface {
	// FindBySlug はスラッグでインデックスページを取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.IndexPage, error)

	// Save はインデックスページを作成または更新する（スラッグで一意）。
	Save(ctx context.Context, page *model.IndexPage) error
}

// SegmentRepository はセグメント・階層ルール・バリアントの永続化インターフェース。
type SegmentRepository interface {
	// ListTierRules は全種別の階層ルールをID順で返す。
	ListTierRules(ctx context.Context) ([]model.TierRule, error)

	// ListVariantsBySegments は指定セグメントに紐づくバリアント対応を返す。
	ListVariantsBySegments(ctx context.Context, segmentIDs []int64) ([]model.Variant, error)

	// SaveSegment はセグメントを名前で一意に作成または更新する。
	SaveSegment(ctx context.Context, segment *model.Segment) error

	// SaveTierRule は階層ルールを作成する。同じ(種別, 閾値, セグメント)が既にあればそのIDを返す。
	SaveTierRule(ctx context.Context, rule *model.TierRule) error

	// SaveVariant はバリアント対応を登録する。
	SaveVariant(ctx context.Context, variant model.Variant) error
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Save はユーザーをメールアドレスで一意に作成または更新する。
	Save(ctx context.Context, user *model.User) error

	// UpdateSubscription は課金Webhookの結果で階層と購読ステータスを更新する。
	// 該当ユーザーがいない場合はfalseを返す。
	UpdateSubscription(ctx context.Context, email string, tier *int, status model.SubscriptionStatus, customerID string) (bool, error)

	// RotateIdentity はUUIDを差し替え、download_reset_counterを1増やす。
	// 該当ユーザーがいない場合はnilを返す。
	RotateIdentity(ctx context.Context, email string, newUUID uuid.UUID) (*model.User, error)
}

// MediaRepository はアップロードメディアの永続化インターフェース。
type MediaRepository interface {
	// FindByID は指定IDのメディアを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Media, error)

	// Save はメディアを作成または更新する（URLで一意）。
	Save(ctx context.Context, media *model.Media) error
}

// DownloadRepository はダウンロード記録の永続化インターフェース。
type DownloadRepository interface {
	// Increment は(user, media)単位のカウンタを1回の文で原子的に加算し、加算後の値を返す。
	Increment(ctx context.Context, userID, mediaID int64, at time.Time) (int64, error)
}
