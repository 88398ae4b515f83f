package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/rentfree/internal/model"
	"github.com/lib/pq"
)

// PostgresContentRepo はPostgreSQLを使用したコンテンツリポジトリ。
type PostgresContentRepo struct {
	db *sql.DB
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sql.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

// contentSelect はメディアとバリアント対応を結合したSELECT句。
// カノニカル側のタイトルとURLはバリアントのフィード出力に使う。
const contentSelect = `SELECT c.id, c.index_page_id, c.kind, c.title, c.slug, c.url, c.guid,
        c.caption, c.search_description, c.body, c.publish_date, c.live, c.tags,
        c.uploaded_media_kind, c.uploaded_media_type,
        c.remote_media_url, c.remote_media_type, c.remote_media_size,
        c.remote_media_duration, c.remote_media_thumbnail_url,
        c.season_number, c.episode_number, c.episode_type, c.is_preview, c.probe_errors,
        m.id, m.title, m.file_name, m.url, m.size, m.duration, m.thumbnail_url, m.created_at,
        v.canonical_id, v.segment_id, cc.title, cc.url
 FROM content_items c
 LEFT JOIN media m ON m.id = c.uploaded_media_id
 LEFT JOIN variants v ON v.variant_id = c.id
 LEFT JOIN content_items cc ON cc.id = v.canonical_id`

// Query は条件に一致するコンテンツを公開日降順（同日はID降順）で返す。
func (r *PostgresContentRepo) Query(ctx context.Context, q ContentQuery) ([]model.Item, error) {
	if q.IDs != nil && len(q.IDs) == 0 {
		return []model.Item{}, nil
	}

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.IndexPageID != 0 {
		conds = append(conds, "c.index_page_id = "+arg(q.IndexPageID))
	}
	if q.LiveOnly {
		conds = append(conds, "c.live")
	}
	if q.Tag != "" {
		conds = append(conds, arg(q.Tag)+" = ANY(c.tags)")
	}
	if q.ExcludeVariants {
		conds = append(conds, "v.variant_id IS NULL")
	}
	if q.ExcludePreviews {
		conds = append(conds, "NOT c.is_preview")
	}
	if q.IDs != nil {
		conds = append(conds, "c.id = ANY("+arg(pq.Array(q.IDs))+")")
	}
	if len(q.ExcludeIDs) > 0 {
		conds = append(conds, "NOT (c.id = ANY("+arg(pq.Array(q.ExcludeIDs))+"))")
	}

	query := contentSelect
	if len(conds) > 0 {
		query += "\n WHERE " + strings.Join(conds, " AND ")
	}
	query += "\n ORDER BY c.publish_date DESC, c.id DESC"

	return r.queryItems(ctx, query, args...)
}

// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) FindByID(ctx context.Context, id int64) (model.Item, error) {
	items, err := r.queryItems(ctx, contentSelect+"\n WHERE c.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// ListNeedingProbe はサイズ未取得のリモートメディアを持つコンテンツを返す。
// ストリーミング専用メディアと、次回プローブ予定が未来のものは除く。
func (r *PostgresContentRepo) ListNeedingProbe(ctx context.Context, limit int) ([]model.Item, error) {
	query := contentSelect + `
 WHERE c.remote_media_url <> ''
   AND c.remote_media_size = 0
   AND c.remote_media_type NOT IN ($1, $2)
   AND (c.probe_next_at IS NULL OR c.probe_next_at <= NOW())
 ORDER BY c.probe_next_at NULLS FIRST, c.id
 LIMIT $3`
	return r.queryItems(ctx, query, model.RemoteTypeYouTube, model.RemoteTypeVimeo, limit)
}

// UpdateProbeResult はリモートメディアのサイズと次回プローブ予定を更新する。
func (r *PostgresContentRepo) UpdateProbeResult(ctx context.Context, id int64, size int64, probeErrors int, nextProbeAt *time.Time) error {
	var next sql.NullTime
	if nextProbeAt != nil {
		next = sql.NullTime{Time: *nextProbeAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE content_items SET
		   remote_media_size = CASE WHEN $2::bigint > 0 THEN $2::bigint ELSE remote_media_size END,
		   probe_errors = $3,
		   probe_next_at = $4,
		   updated_at = NOW()
		 WHERE id = $1`,
		id, size, probeErrors, next,
	)
	if err != nil {
		return fmt.Errorf("プローブ結果の更新に失敗しました: %w", err)
	}
	return nil
}

// Save はコンテンツを作成または更新し、著者・寄稿者も置き換える。
// IDが0なら (index_page_id, slug) で一意に作成または更新し、IDを設定する。
func (r *PostgresContentRepo) Save(ctx context.Context, item model.Item) error {
	c := item.Base()

	var season, episode, uploadedMediaID sql.NullInt64
	episodeType := "full"
	isPreview := false
	if ep, ok := item.(*model.PodcastEpisode); ok {
		season = nullInt(ep.SeasonNumber)
		episode = nullInt(ep.EpisodeNumber)
		if ep.EpisodeType != "" {
			episodeType = ep.EpisodeType
		}
		isPreview = ep.IsPreview
	}
	if c.UploadedMedia != nil {
		uploadedMediaID = sql.NullInt64{Int64: c.UploadedMedia.ID, Valid: true}
	}
	mediaKind := c.UploadedMediaKind
	if mediaKind == "" {
		mediaKind = model.MediaKindAudio
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	args := []any{
		c.IndexPageID, string(item.Kind()), c.Title, c.Slug, c.URL, c.GUID,
		c.Caption, c.SearchDescription, c.Body, c.PublishDate, c.Live, pq.Array(tags),
		uploadedMediaID, string(mediaKind), c.UploadedMediaType,
		c.RemoteMediaURL, c.RemoteMediaType, c.RemoteMediaSize,
		c.RemoteMediaDuration, c.RemoteMediaThumbnailURL,
		season, episode, episodeType, isPreview,
	}

	if c.ID == 0 {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO content_items (
			   index_page_id, kind, title, slug, url, guid,
			   caption, search_description, body, publish_date, live, tags,
			   uploaded_media_id, uploaded_media_kind, uploaded_media_type,
			   remote_media_url, remote_media_type, remote_media_size,
			   remote_media_duration, remote_media_thumbnail_url,
			   season_number, episode_number, episode_type, is_preview)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			         $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
			 ON CONFLICT (index_page_id, slug) DO UPDATE SET
			   kind = EXCLUDED.kind, title = EXCLUDED.title, url = EXCLUDED.url, guid = EXCLUDED.guid,
			   caption = EXCLUDED.caption, search_description = EXCLUDED.search_description,
			   body = EXCLUDED.body, publish_date = EXCLUDED.publish_date, live = EXCLUDED.live,
			   tags = EXCLUDED.tags, uploaded_media_id = EXCLUDED.uploaded_media_id,
			   uploaded_media_kind = EXCLUDED.uploaded_media_kind,
			   uploaded_media_type = EXCLUDED.uploaded_media_type,
			   remote_media_url = EXCLUDED.remote_media_url,
			   remote_media_type = EXCLUDED.remote_media_type,
			   remote_media_size = EXCLUDED.remote_media_size,
			   remote_media_duration = EXCLUDED.remote_media_duration,
			   remote_media_thumbnail_url = EXCLUDED.remote_media_thumbnail_url,
			   season_number = EXCLUDED.season_number, episode_number = EXCLUDED.episode_number,
			   episode_type = EXCLUDED.episode_type, is_preview = EXCLUDED.is_preview,
			   probe_errors = 0, probe_next_at = NULL, updated_at = NOW()
			 RETURNING id`,
			args...,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("コンテンツの作成に失敗しました: %w", err)
		}
	} else {
		result, err := tx.ExecContext(ctx,
			`UPDATE content_items SET
			   index_page_id = $1, kind = $2, title = $3, slug = $4, url = $5, guid = $6,
			   caption = $7, search_description = $8, body = $9, publish_date = $10,
			   live = $11, tags = $12, uploaded_media_id = $13, uploaded_media_kind = $14,
			   uploaded_media_type = $15, remote_media_url = $16, remote_media_type = $17,
			   remote_media_size = $18, remote_media_duration = $19,
			   remote_media_thumbnail_url = $20, season_number = $21, episode_number = $22,
			   episode_type = $23, is_preview = $24,
			   probe_errors = 0, probe_next_at = NULL, updated_at = NOW()
			 WHERE id = $25`,
			append(args, c.ID)...,
		)
		if err != nil {
			return fmt.Errorf("コンテンツの更新に失敗しました: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
		} else if n == 0 {
			return fmt.Errorf("コンテンツが見つかりません: %d", c.ID)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM content_people WHERE content_id = $1`, c.ID); err != nil {
		return fmt.Errorf("著者情報の削除に失敗しました: %w", err)
	}
	if err := insertPeople(ctx, tx, c.ID, "author", c.Authors); err != nil {
		return err
	}
	if err := insertPeople(ctx, tx, c.ID, "contributor", c.Contributors); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

func insertPeople(ctx context.Context, tx *sql.Tx, contentID int64, role string, people []model.Person) error {
	for i, p := range people {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO content_people (content_id, role, position, user_name, first_name, last_name, display_name)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			contentID, role, i, p.UserName, p.FirstName, p.LastName, p.DisplayName,
		)
		if err != nil {
			return fmt.Errorf("著者情報の登録に失敗しました: %w", err)
		}
	}
	return nil
}

// queryItems は contentSelect 形式のクエリを実行し、著者・寄稿者を付与して返す。
func (r *PostgresContentRepo) queryItems(ctx context.Context, query string, args ...any) ([]model.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	byID := make(map[int64]*model.Content)
	var ids []int64
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		byID[item.Base().ID] = item.Base()
		ids = append(ids, item.Base().ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コンテンツの走査に失敗しました: %w", err)
	}

	if len(ids) > 0 {
		if err := r.attachPeople(ctx, ids, byID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *PostgresContentRepo) attachPeople(ctx context.Context, ids []int64, byID map[int64]*model.Content) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT content_id, role, user_name, first_name, last_name, display_name
		 FROM content_people
		 WHERE content_id = ANY($1)
		 ORDER BY content_id, role, position`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("著者情報の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			contentID int64
			role      string
			p         model.Person
		)
		if err := rows.Scan(&contentID, &role, &p.UserName, &p.FirstName, &p.LastName, &p.DisplayName); err != nil {
			return fmt.Errorf("著者情報の読み取りに失敗しました: %w", err)
		}
		c := byID[contentID]
		if c == nil {
			continue
		}
		if role == "author" {
			c.Authors = append(c.Authors, p)
		} else {
			c.Contributors = append(c.Contributors, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("著者情報の走査に失敗しました: %w", err)
	}
	return nil
}

func scanContent(rows *sql.Rows) (model.Item, error) {
	var (
		c               model.Content
		kind, mediaKind string
		tags            []string
		season, episode sql.NullInt64
		episodeType     string
		isPreview       bool
		mediaID         sql.NullInt64
		mediaTitle      sql.NullString
		mediaFile       sql.NullString
		mediaURL        sql.NullString
		mediaSize       sql.NullInt64
		mediaDuration   sql.NullString
		mediaThumb      sql.NullString
		mediaCreatedAt  sql.NullTime
		canonicalID     sql.NullInt64
		segmentID       sql.NullInt64
		canonicalTitle  sql.NullString
		canonicalURL    sql.NullString
	)

	err := rows.Scan(
		&c.ID, &c.IndexPageID, &kind, &c.Title, &c.Slug, &c.URL, &c.GUID,
		&c.Caption, &c.SearchDescription, &c.Body, &c.PublishDate, &c.Live, pq.Array(&tags),
		&mediaKind, &c.UploadedMediaType,
		&c.RemoteMediaURL, &c.RemoteMediaType, &c.RemoteMediaSize,
		&c.RemoteMediaDuration, &c.RemoteMediaThumbnailURL,
		&season, &episode, &episodeType, &isPreview, &c.ProbeErrors,
		&mediaID, &mediaTitle, &mediaFile, &mediaURL, &mediaSize, &mediaDuration, &mediaThumb, &mediaCreatedAt,
		&canonicalID, &segmentID, &canonicalTitle, &canonicalURL,
	)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの読み取りに失敗しました: %w", err)
	}

	c.Tags = tags
	c.UploadedMediaKind = model.MediaKind(mediaKind)
	if mediaID.Valid {
		c.UploadedMedia = &model.Media{
			ID:           mediaID.Int64,
			Title:        nullStringValue(mediaTitle),
			FileName:     nullStringValue(mediaFile),
			URL:          nullStringValue(mediaURL),
			Size:         mediaSize.Int64,
			Duration:     nullStringValue(mediaDuration),
			ThumbnailURL: nullStringValue(mediaThumb),
			CreatedAt:    mediaCreatedAt.Time,
		}
	}
	if canonicalID.Valid {
		c.CanonicalID = canonicalID.Int64
		c.SegmentID = segmentID.Int64
		c.CanonicalTitle = nullStringValue(canonicalTitle)
		c.CanonicalURL = nullStringValue(canonicalURL)
	}

	item, err := model.NewItem(model.ContentKind(kind))
	if err != nil {
		return nil, fmt.Errorf("コンテンツ %d: %w", c.ID, err)
	}
	switch it := item.(type) {
	case *model.PodcastEpisode:
		it.Content = c
		it.SeasonNumber = intPtrFromNull(season)
		it.EpisodeNumber = intPtrFromNull(episode)
		it.EpisodeType = episodeType
		it.IsPreview = isPreview
	case *model.Article:
		it.Content = c
	}
	return item, nil
}

// compile-time interface check
var _ ContentRepository = (*PostgresContentRepo)(nil)
