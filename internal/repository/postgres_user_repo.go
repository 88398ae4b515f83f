package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/rentfree/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, user_name, first_name, last_name, uuid,
        subscription_tier, subscription_status, download_reset_counter,
        billing_customer_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var (
		tier   sql.NullInt64
		status string
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.UserName, &user.FirstName, &user.LastName, &user.UUID,
		&tier, &status, &user.DownloadResetCounter,
		&user.BillingCustomerID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.SubscriptionTier = intPtrFromNull(tier)
	user.SubscriptionStatus = model.SubscriptionStatus(status)
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによるユーザーの検索に失敗しました: %w", err)
	}
	return user, nil
}

// Save はユーザーをメールアドレスで一意に作成または更新する。
// 既存ユーザーのUUIDとリセット回数は保持する。
func (r *PostgresUserRepo) Save(ctx context.Context, user *model.User) error {
	if user.UUID == uuid.Nil {
		user.UUID = uuid.New()
	}

	saved, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (email, user_name, first_name, last_name, uuid,
		                    subscription_tier, subscription_status, billing_customer_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (email) DO UPDATE SET
		   user_name = EXCLUDED.user_name,
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   subscription_tier = EXCLUDED.subscription_tier,
		   subscription_status = EXCLUDED.subscription_status,
		   billing_customer_id = EXCLUDED.billing_customer_id,
		   updated_at = NOW()
		 RETURNING `+userColumns,
		user.Email, user.UserName, user.FirstName, user.LastName, user.UUID,
		nullInt(user.SubscriptionTier), string(user.SubscriptionStatus), user.BillingCustomerID,
	))
	if err != nil {
		return fmt.Errorf("ユーザーの保存に失敗しました: %w", err)
	}
	*user = *saved
	return nil
}

// UpdateSubscription は課金Webhookの結果で階層と購読ステータスを更新する。
// customerIDが空なら既存の値を保持する。
func (r *PostgresUserRepo) UpdateSubscription(ctx context.Context, email string, tier *int, status model.SubscriptionStatus, customerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET
		   subscription_tier = $2,
		   subscription_status = $3,
		   billing_customer_id = COALESCE(NULLIF($4, ''), billing_customer_id),
		   updated_at = NOW()
		 WHERE email = $1`,
		email, nullInt(tier), string(status), customerID,
	)
	if err != nil {
		return false, fmt.Errorf("購読状態の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// RotateIdentity はUUIDを差し替え、download_reset_counterを1増やし、
// ユーザーのダウンロード記録を削除する。すべて同一トランザクションで行う。
func (r *PostgresUserRepo) RotateIdentity(ctx context.Context, email string, newUUID uuid.UUID) (*model.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx,
		`UPDATE users SET
		   uuid = $2,
		   download_reset_counter = download_reset_counter + 1,
		   updated_at = NOW()
		 WHERE email = $1
		 RETURNING `+userColumns,
		email, newUUID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UUIDのローテーションに失敗しました: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM downloads WHERE user_id = $1`, user.ID); err != nil {
		return nil, fmt.Errorf("ダウンロード記録の削除に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
