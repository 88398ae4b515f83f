package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/rentfree/internal/model"
)

// PostgresMediaRepo はPostgreSQLを使用したアップロードメディアリポジトリ。
type PostgresMediaRepo struct {
	db *sql.DB
}

// NewPostgresMediaRepo はPostgresMediaRepoを生成する。
func NewPostgresMediaRepo(db *sql.DB) *PostgresMediaRepo {
	return &PostgresMediaRepo{db: db}
}

// FindByID は指定IDのメディアを取得する。見つからない場合はnilを返す。
func (r *PostgresMediaRepo) FindByID(ctx context.Context, id int64) (*model.Media, error) {
	m := &model.Media{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, file_name, url, size, duration, thumbnail_url, created_at
		 FROM media WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Title, &m.FileName, &m.URL, &m.Size, &m.Duration, &m.ThumbnailURL, &m.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	return m, nil
}

// Save はメディアを作成または更新し、IDを設定する。IDが0ならURLで一意に扱う。
func (r *PostgresMediaRepo) Save(ctx context.Context, m *model.Media) error {
	if m.ID != 0 {
		_, err := r.db.ExecContext(ctx,
			`UPDATE media SET title = $2, file_name = $3, url = $4, size = $5,
			        duration = $6, thumbnail_url = $7
			 WHERE id = $1`,
			m.ID, m.Title, m.FileName, m.URL, m.Size, m.Duration, m.ThumbnailURL,
		)
		if err != nil {
			return fmt.Errorf("メディアの更新に失敗しました: %w", err)
		}
		return nil
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO media (title, file_name, url, size, duration, thumbnail_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (url) DO UPDATE SET
		   title = EXCLUDED.title,
		   file_name = EXCLUDED.file_name,
		   size = EXCLUDED.size,
		   duration = EXCLUDED.duration,
		   thumbnail_url = EXCLUDED.thumbnail_url
		 RETURNING id`,
		m.Title, m.FileName, m.URL, m.Size, m.Duration, m.ThumbnailURL, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("メディアの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MediaRepository = (*PostgresMediaRepo)(nil)

// PostgresDownloadRepo はPostgreSQLを使用したダウンロード記録リポジトリ。
type PostgresDownloadRepo struct {
	db *sql.DB
}

// NewPostgresDownloadRepo はPostgresDownloadRepoを生成する。
func NewPostgresDownloadRepo(db *sql.DB) *PostgresDownloadRepo {
	return &PostgresDownloadRepo{db: db}
}

// Increment は(user, media)単位のカウンタを1回の文で原子的に加算し、加算後の値を返す。
// 同時リクエストでも加算は失われない。
func (r *PostgresDownloadRepo) Increment(ctx context.Context, userID, mediaID int64, at time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO downloads (user_id, media_id, download_count, last_downloaded_at)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (user_id, media_id) DO UPDATE SET
		   download_count = downloads.download_count + 1,
		   last_downloaded_at = EXCLUDED.last_downloaded_at
		 RETURNING download_count`,
		userID, mediaID, at,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ダウンロード回数の加算に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ DownloadRepository = (*PostgresDownloadRepo)(nil)
