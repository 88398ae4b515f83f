package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rentfree/internal/model"
	"github.com/lib/pq"
)

// PostgresSegmentRepo はPostgreSQLを使用したセグメントリポジトリ。
type PostgresSegmentRepo struct {
	db *sql.DB
}

// NewPostgresSegmentRepo はPostgresSegmentRepoを生成する。
func NewPostgresSegmentRepo(db *sql.DB) *PostgresSegmentRepo {
	return &PostgresSegmentRepo{db: db}
}

// ListTierRules は全種別の階層ルールをID順で返す。
func (r *PostgresSegmentRepo) ListTierRules(ctx context.Context) ([]model.TierRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, threshold_tier, segment_id FROM tier_rules ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("階層ルールの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var rules []model.TierRule
	for rows.Next() {
		var (
			rule model.TierRule
			kind string
		)
		if err := rows.Scan(&rule.ID, &kind, &rule.ThresholdTier, &rule.SegmentID); err != nil {
			return nil, fmt.Errorf("階層ルールの読み取りに失敗しました: %w", err)
		}
		rule.Kind = model.TierRuleKind(kind)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("階層ルールの走査に失敗しました: %w", err)
	}
	return rules, nil
}

// ListVariantsBySegments は指定セグメントに紐づくバリアント対応をvariant_id順で返す。
func (r *PostgresSegmentRepo) ListVariantsBySegments(ctx context.Context, segmentIDs []int64) ([]model.Variant, error) {
	if len(segmentIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT variant_id, canonical_id, segment_id
		 FROM variants
		 WHERE segment_id = ANY($1)
		 ORDER BY variant_id`,
		pq.Array(segmentIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("バリアントの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var variants []model.Variant
	for rows.Next() {
		var v model.Variant
		if err := rows.Scan(&v.VariantID, &v.CanonicalID, &v.SegmentID); err != nil {
			return nil, fmt.Errorf("バリアントの読み取りに失敗しました: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("バリアントの走査に失敗しました: %w", err)
	}
	return variants, nil
}

// SaveSegment はセグメントを名前で一意に作成または更新し、IDを設定する。
func (r *PostgresSegmentRepo) SaveSegment(ctx context.Context, segment *model.Segment) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO segments (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		segment.Name,
	).Scan(&segment.ID)
	if err != nil {
		return fmt.Errorf("セグメントの保存に失敗しました: %w", err)
	}
	return nil
}

// SaveTierRule は階層ルールを作成し、IDを設定する。既存の同一ルールは再利用する。
func (r *PostgresSegmentRepo) SaveTierRule(ctx context.Context, rule *model.TierRule) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tier_rules (kind, threshold_tier, segment_id) VALUES ($1, $2, $3)
		 ON CONFLICT (kind, threshold_tier, segment_id) DO UPDATE SET kind = EXCLUDED.kind
		 RETURNING id`,
		string(rule.Kind), rule.ThresholdTier, rule.SegmentID,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("階層ルールの保存に失敗しました: %w", err)
	}
	return nil
}

// SaveVariant はバリアント対応を登録する。同じvariant_idの既存対応は置き換える。
func (r *PostgresSegmentRepo) SaveVariant(ctx context.Context, v model.Variant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO variants (variant_id, canonical_id, segment_id) VALUES ($1, $2, $3)
		 ON CONFLICT (variant_id) DO UPDATE SET
		   canonical_id = EXCLUDED.canonical_id,
		   segment_id = EXCLUDED.segment_id`,
		v.VariantID, v.CanonicalID, v.SegmentID,
	)
	if err != nil {
		return fmt.Errorf("バリアントの保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SegmentRepository = (*PostgresSegmentRepo)(nil)
