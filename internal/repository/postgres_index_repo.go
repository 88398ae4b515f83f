package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rentfree/internal/model"
	"github.com/lib/pq"
)

// PostgresIndexPageRepo はPostgreSQLを使用したインデックスページリポジトリ。
type PostgresIndexPageRepo struct {
	db *sql.DB
}

// NewPostgresIndexPageRepo はPostgresIndexPageRepoを生成する。
func NewPostgresIndexPageRepo(db *sql.DB) *PostgresIndexPageRepo {
	return &PostgresIndexPageRepo{db: db}
}

// FindBySlug はスラッグでインデックスページを取得する。見つからない場合はnilを返す。
func (r *PostgresIndexPageRepo) FindBySlug(ctx context.Context, slug string) (*model.IndexPage, error) {
	p := &model.IndexPage{}
	var (
		kind string
		ttl  sql.NullInt64
		tags []string
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT id, slug, kind, title, url,
		        rss_title, rss_description, rss_itunes_description, rss_ttl,
		        image_url, premium_image_url,
		        itunes_primary_category, itunes_primary_subcategory,
		        itunes_secondary_category, itunes_secondary_subcategory, google_category,
		        preview_text, omit_previews, explicit, combine_private, include_episode_number,
		        itunes_type, itunes_author, itunes_owner, itunes_owner_email, copyright,
		        categories, author_email, editor_email, tags
		 FROM index_pages WHERE slug = $1`,
		slug,
	).Scan(
		&p.ID, &p.Slug, &kind, &p.Title, &p.URL,
		&p.RSSTitle, &p.RSSDescription, &p.RSSItunesDescription, &ttl,
		&p.ImageURL, &p.PremiumImageURL,
		&p.ItunesPrimaryCategory, &p.ItunesPrimarySubcategory,
		&p.ItunesSecondaryCategory, &p.ItunesSecondarySubcategory, &p.GoogleCategory,
		&p.PreviewText, &p.OmitPreviews, &p.Explicit, &p.CombinePrivate, &p.IncludeEpisodeNumber,
		&p.ItunesType, &p.ItunesAuthor, &p.ItunesOwner, &p.ItunesOwnerEmail, &p.Copyright,
		&p.Categories, &p.AuthorEmail, &p.EditorEmail, pq.Array(&tags),
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("インデックスページの取得に失敗しました: %w", err)
	}

	p.Kind = model.ContentKind(kind)
	p.RSSTTL = intPtrFromNull(ttl)
	p.Tags = tags
	return p, nil
}

// Save はインデックスページをスラッグで一意に作成または更新し、IDを設定する。
func (r *PostgresIndexPageRepo) Save(ctx context.Context, p *model.IndexPage) error {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	itunesType := p.ItunesType
	if itunesType == "" {
		itunesType = "episodic"
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO index_pages (
		   slug, kind, title, url,
		   rss_title, rss_description, rss_itunes_description, rss_ttl,
		   image_url, premium_image_url,
		   itunes_primary_category, itunes_primary_subcategory,
		   itunes_secondary_category, itunes_secondary_subcategory, google_category,
		   preview_text, omit_previews, explicit, combine_private, include_episode_number,
		   itunes_type, itunes_author, itunes_owner, itunes_owner_email, copyright,
		   categories, author_email, editor_email, tags)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
		 ON CONFLICT (slug) DO UPDATE SET
		   kind = EXCLUDED.kind, title = EXCLUDED.title, url = EXCLUDED.url,
		   rss_title = EXCLUDED.rss_title, rss_description = EXCLUDED.rss_description,
		   rss_itunes_description = EXCLUDED.rss_itunes_description, rss_ttl = EXCLUDED.rss_ttl,
		   image_url = EXCLUDED.image_url, premium_image_url = EXCLUDED.premium_image_url,
		   itunes_primary_category = EXCLUDED.itunes_primary_category,
		   itunes_primary_subcategory = EXCLUDED.itunes_primary_subcategory,
		   itunes_secondary_category = EXCLUDED.itunes_secondary_category,
		   itunes_secondary_subcategory = EXCLUDED.itunes_secondary_subcategory,
		   google_category = EXCLUDED.google_category, preview_text = EXCLUDED.preview_text,
		   omit_previews = EXCLUDED.omit_previews, explicit = EXCLUDED.explicit,
		   combine_private = EXCLUDED.combine_private,
		   include_episode_number = EXCLUDED.include_episode_number,
		   itunes_type = EXCLUDED.itunes_type, itunes_author = EXCLUDED.itunes_author,
		   itunes_owner = EXCLUDED.itunes_owner, itunes_owner_email = EXCLUDED.itunes_owner_email,
		   copyright = EXCLUDED.copyright, categories = EXCLUDED.categories,
		   author_email = EXCLUDED.author_email, editor_email = EXCLUDED.editor_email,
		   tags = EXCLUDED.tags
		 RETURNING id`,
		p.Slug, string(p.Kind), p.Title, p.URL,
		p.RSSTitle, p.RSSDescription, p.RSSItunesDescription, nullInt(p.RSSTTL),
		p.ImageURL, p.PremiumImageURL,
		p.ItunesPrimaryCategory, p.ItunesPrimarySubcategory,
		p.ItunesSecondaryCategory, p.ItunesSecondarySubcategory, p.GoogleCategory,
		p.PreviewText, p.OmitPreviews, p.Explicit, p.CombinePrivate, p.IncludeEpisodeNumber,
		itunesType, p.ItunesAuthor, p.ItunesOwner, p.ItunesOwnerEmail, p.Copyright,
		p.Categories, p.AuthorEmail, p.EditorEmail, pq.Array(tags),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("インデックスページの保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IndexPageRepository = (*PostgresIndexPageRepo)(nil)
