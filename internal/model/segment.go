package model

import "time"

// Segment は階層ルールで定義されるオーディエンスのまとまり。
type Segment struct {
	ID   int64
	Name string
}

// TierRuleKind は階層ルールの比較種別。
type TierRuleKind string

const (
	// RuleAtLeastTier は tier >= threshold で一致する。
	RuleAtLeastTier TierRuleKind = "at_least"
	// RuleExactlyTier は tier == threshold で一致する。
	RuleExactlyTier TierRuleKind = "exactly"
)

// TierRule はユーザーをセグメントへ分類するルール。
// 評価結果は永続化せず、リクエストごとに評価する。
type TierRule struct {
	ID            int64
	Kind          TierRuleKind
	ThresholdTier int
	SegmentID     int64
}

// Variant はカノニカルページとセグメント向けのパーソナライズ版の対応。
type Variant struct {
	VariantID   int64
	CanonicalID int64
	SegmentID   int64
}

// Download はユーザー×メディア単位のダウンロード記録。
type Download struct {
	UserID           int64
	MediaID          int64
	Count            int64
	LastDownloadedAt time.Time
}
