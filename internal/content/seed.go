package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentfree/internal/model"
	"github.com/hitoshi/rentfree/internal/repository"
)

// Seed はimportサブコマンドが読み込むJSONドキュメント。
// 参照はIDではなくスラッグ・ファイル名・セグメント名・メールアドレスで行う。
type Seed struct {
	IndexPages []SeedIndexPage `json:"index_pages"`
	Media      []SeedMedia     `json:"media"`
	Segments   []SeedSegment   `json:"segments"`
	Users      []SeedUser      `json:"users"`
	Items      []SeedItem      `json:"items"`
}

type SeedIndexPage struct {
	Slug                       string   `json:"slug"`
	Kind                       string   `json:"kind"`
	Title                      string   `json:"title"`
	URL                        string   `json:"url"`
	RSSTitle                   string   `json:"rss_title"`
	RSSDescription             string   `json:"rss_description"`
	RSSItunesDescription       string   `json:"rss_itunes_description"`
	RSSTTL                     string   `json:"rss_ttl"`
	ImageURL                   string   `json:"image_url"`
	PremiumImageURL            string   `json:"premium_image_url"`
	ItunesPrimaryCategory      string   `json:"itunes_primary_category"`
	ItunesPrimarySubcategory   string   `json:"itunes_primary_subcategory"`
	ItunesSecondaryCategory    string   `json:"itunes_secondary_category"`
	ItunesSecondarySubcategory string   `json:"itunes_secondary_subcategory"`
	GoogleCategory             string   `json:"google_category"`
	PreviewText                string   `json:"preview_text"`
	OmitPreviews               bool     `json:"omit_previews"`
	Explicit                   bool     `json:"explicit"`
	CombinePrivate             bool     `json:"combine_private"`
	IncludeEpisodeNumber       bool     `json:"include_episode_number"`
	ItunesType                 string   `json:"itunes_type"`
	ItunesAuthor               string   `json:"itunes_author"`
	ItunesOwner                string   `json:"itunes_owner"`
	ItunesOwnerEmail           string   `json:"itunes_owner_email"`
	Copyright                  string   `json:"copyright"`
	Categories                 bool     `json:"categories"`
	AuthorEmail                string   `json:"author_email"`
	EditorEmail                string   `json:"editor_email"`
	Tags                       []string `json:"tags"`
}

type SeedMedia struct {
	Title        string `json:"title"`
	FileName     string `json:"file_name"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	Duration     string `json:"duration"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type SeedSegment struct {
	Name  string         `json:"name"`
	Rules []SeedTierRule `json:"rules"`
}

type SeedTierRule struct {
	Kind      string `json:"kind"`
	Threshold int    `json:"threshold"`
}

type SeedUser struct {
	Email              string `json:"email"`
	UserName           string `json:"user_name"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	SubscriptionTier   *int   `json:"subscription_tier"`
	SubscriptionStatus string `json:"subscription_status"`
}

type SeedPerson struct {
	UserName    string `json:"user_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
}

type SeedItem struct {
	Index             string       `json:"index"`
	Kind              string       `json:"kind"`
	Title             string       `json:"title"`
	Slug              string       `json:"slug"`
	URL               string       `json:"url"`
	GUID              string       `json:"guid"`
	Caption           string       `json:"caption"`
	SearchDescription string       `json:"search_description"`
	Body              string       `json:"body"`
	PublishDate       time.Time    `json:"publish_date"`
	Live              bool         `json:"live"`
	Tags              []string     `json:"tags"`
	Authors           []SeedPerson `json:"authors"`
	Contributors      []SeedPerson `json:"contributors"`

	UploadedMedia     string `json:"uploaded_media"` // SeedMedia.FileName
	UploadedMediaKind string `json:"uploaded_media_kind"`

	RemoteMediaURL          string `json:"remote_media_url"`
	RemoteMediaType         string `json:"remote_media_type"`
	RemoteMediaSize         int64  `json:"remote_media_size"`
	RemoteMediaDuration     string `json:"remote_media_duration"`
	RemoteMediaThumbnailURL string `json:"remote_media_thumbnail_url"`

	SeasonNumber  *int   `json:"season_number"`
	EpisodeNumber *int   `json:"episode_number"`
	EpisodeType   string `json:"episode_type"`
	IsPreview     bool   `json:"is_preview"`

	// VariantOf と Segment を指定するとパーソナライズ版として登録する。
	VariantOf string `json:"variant_of"`
	Segment   string `json:"segment"`
}

// DecodeSeed はJSONのシードを読み込む。未知のフィールドはエラーにする。
func DecodeSeed(r io.Reader) (*Seed, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var s Seed
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("シードの読み込みに失敗しました: %w", err)
	}
	return &s, nil
}

// ImportSummary は取り込み件数。
type ImportSummary struct {
	IndexPages int
	Media      int
	Segments   int
	TierRules  int
	Users      int
	Items      int
	Variants   int
}

// ContentSaver はコンテンツ保存のインターフェース。Serviceが実装する。
type ContentSaver interface {
	Save(ctx context.Context, item model.Item) error
}

// Importer はシードを各リポジトリへ取り込む。
type Importer struct {
	indexes  repository.IndexPageRepository
	media    repository.MediaRepository
	segments repository.SegmentRepository
	users    repository.UserRepository
	saver    ContentSaver
	logger   *slog.Logger
}

// NewImporter はImporterを生成する。
func NewImporter(
	indexes repository.IndexPageRepository,
	media repository.MediaRepository,
	segments repository.SegmentRepository,
	users repository.UserRepository,
	saver ContentSaver,
	logger *slog.Logger,
) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		indexes:  indexes,
		media:    media,
		segments: segments,
		users:    users,
		saver:    saver,
		logger:   logger,
	}
}

// Import はシードを依存順（インデックス→メディア→セグメント→ユーザー→カノニカル→バリアント）に取り込む。
// 最初のエラーで中断する。
func (im *Importer) Import(ctx context.Context, seed *Seed) (ImportSummary, error) {
	var sum ImportSummary

	indexIDs := make(map[string]int64, len(seed.IndexPages))
	for _, sp := range seed.IndexPages {
		page, err := sp.build()
		if err != nil {
			return sum, err
		}
		if err := im.indexes.Save(ctx, page); err != nil {
			return sum, fmt.Errorf("インデックスページ %q の保存に失敗しました: %w", sp.Slug, err)
		}
		indexIDs[sp.Slug] = page.ID
		sum.IndexPages++
	}

	mediaByFile := make(map[string]*model.Media, len(seed.Media))
	for _, sm := range seed.Media {
		m := &model.Media{
			Title:        sm.Title,
			FileName:     sm.FileName,
			URL:          sm.URL,
			Size:         sm.Size,
			Duration:     sm.Duration,
			ThumbnailURL: sm.ThumbnailURL,
		}
		if err := im.media.Save(ctx, m); err != nil {
			return sum, fmt.Errorf("メディア %q の保存に失敗しました: %w", sm.FileName, err)
		}
		mediaByFile[sm.FileName] = m
		sum.Media++
	}

	segmentIDs := make(map[string]int64, len(seed.Segments))
	for _, ss := range seed.Segments {
		seg := &model.Segment{Name: ss.Name}
		if err := im.segments.SaveSegment(ctx, seg); err != nil {
			return sum, fmt.Errorf("セグメント %q の保存に失敗しました: %w", ss.Name, err)
		}
		segmentIDs[ss.Name] = seg.ID
		sum.Segments++

		for _, sr := range ss.Rules {
			kind := model.TierRuleKind(sr.Kind)
			if kind != model.RuleAtLeastTier && kind != model.RuleExactlyTier {
				return sum, fmt.Errorf("セグメント %q: 不明なルール種別 %q", ss.Name, sr.Kind)
			}
			rule := &model.TierRule{Kind: kind, ThresholdTier: sr.Threshold, SegmentID: seg.ID}
			if err := im.segments.SaveTierRule(ctx, rule); err != nil {
				return sum, fmt.Errorf("階層ルールの保存に失敗しました: %w", err)
			}
			sum.TierRules++
		}
	}

	for _, su := range seed.Users {
		u := &model.User{
			Email:              su.Email,
			UserName:           su.UserName,
			FirstName:          su.FirstName,
			LastName:           su.LastName,
			UUID:               uuid.New(),
			SubscriptionTier:   su.SubscriptionTier,
			SubscriptionStatus: model.SubscriptionStatus(su.SubscriptionStatus),
		}
		if err := im.users.Save(ctx, u); err != nil {
			return sum, fmt.Errorf("ユーザー %q の保存に失敗しました: %w", su.Email, err)
		}
		sum.Users++
	}

	itemIDs := make(map[string]int64, len(seed.Items))
	var variants []SeedItem
	for _, si := range seed.Items {
		if si.VariantOf != "" {
			variants = append(variants, si)
			continue
		}
		id, err := im.saveItem(ctx, si, indexIDs, mediaByFile)
		if err != nil {
			return sum, err
		}
		itemIDs[si.Slug] = id
		sum.Items++
	}

	for _, si := range variants {
		canonicalID, ok := itemIDs[si.VariantOf]
		if !ok {
			return sum, fmt.Errorf("バリアント %q: カノニカル %q が見つかりません", si.Slug, si.VariantOf)
		}
		segmentID, ok := segmentIDs[si.Segment]
		if !ok {
			return sum, fmt.Errorf("バリアント %q: セグメント %q が見つかりません", si.Slug, si.Segment)
		}
		id, err := im.saveItem(ctx, si, indexIDs, mediaByFile)
		if err != nil {
			return sum, err
		}
		v := model.Variant{VariantID: id, CanonicalID: canonicalID, SegmentID: segmentID}
		if err := im.segments.SaveVariant(ctx, v); err != nil {
			return sum, fmt.Errorf("バリアント %q の登録に失敗しました: %w", si.Slug, err)
		}
		itemIDs[si.Slug] = id
		sum.Items++
		sum.Variants++
	}

	im.logger.Info("シードを取り込みました",
		slog.Int("index_pages", sum.IndexPages),
		slog.Int("items", sum.Items),
		slog.Int("variants", sum.Variants),
	)
	return sum, nil
}

func (im *Importer) saveItem(ctx context.Context, si SeedItem, indexIDs map[string]int64, mediaByFile map[string]*model.Media) (int64, error) {
	indexID, ok := indexIDs[si.Index]
	if !ok {
		return 0, fmt.Errorf("コンテンツ %q: インデックスページ %q が見つかりません", si.Slug, si.Index)
	}

	item, err := si.build(indexID, mediaByFile)
	if err != nil {
		return 0, err
	}
	if err := im.saver.Save(ctx, item); err != nil {
		return 0, err
	}
	return item.Base().ID, nil
}

func (sp SeedIndexPage) build() (*model.IndexPage, error) {
	kind := model.ContentKind(sp.Kind)
	if _, ok := model.LookupKind(kind); !ok {
		return nil, fmt.Errorf("インデックスページ %q: 不明な種別 %q", sp.Slug, sp.Kind)
	}
	ttl, err := NormalizeTTL(sp.RSSTTL)
	if err != nil {
		return nil, fmt.Errorf("インデックスページ %q: %w", sp.Slug, err)
	}
	return &model.IndexPage{
		Slug:                       sp.Slug,
		Kind:                       kind,
		Title:                      sp.Title,
		URL:                        sp.URL,
		RSSTitle:                   sp.RSSTitle,
		RSSDescription:             sp.RSSDescription,
		RSSItunesDescription:       sp.RSSItunesDescription,
		RSSTTL:                     ttl,
		ImageURL:                   sp.ImageURL,
		PremiumImageURL:            sp.PremiumImageURL,
		ItunesPrimaryCategory:      sp.ItunesPrimaryCategory,
		ItunesPrimarySubcategory:   sp.ItunesPrimarySubcategory,
		ItunesSecondaryCategory:    sp.ItunesSecondaryCategory,
		ItunesSecondarySubcategory: sp.ItunesSecondarySubcategory,
		GoogleCategory:             sp.GoogleCategory,
		PreviewText:                sp.PreviewText,
		OmitPreviews:               sp.OmitPreviews,
		Explicit:                   sp.Explicit,
		CombinePrivate:             sp.CombinePrivate,
		IncludeEpisodeNumber:       sp.IncludeEpisodeNumber,
		ItunesType:                 sp.ItunesType,
		ItunesAuthor:               sp.ItunesAuthor,
		ItunesOwner:                sp.ItunesOwner,
		ItunesOwnerEmail:           sp.ItunesOwnerEmail,
		Copyright:                  sp.Copyright,
		Categories:                 sp.Categories,
		AuthorEmail:                sp.AuthorEmail,
		EditorEmail:                sp.EditorEmail,
		Tags:                       sp.Tags,
	}, nil
}

func (si SeedItem) build(indexID int64, mediaByFile map[string]*model.Media) (model.Item, error) {
	item, err := model.NewItem(model.ContentKind(si.Kind))
	if err != nil {
		return nil, fmt.Errorf("コンテンツ %q: %w", si.Slug, err)
	}

	duration, err := NormalizeDuration(si.RemoteMediaDuration)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ %q: %w", si.Slug, err)
	}

	c := item.Base()
	c.IndexPageID = indexID
	c.Title = si.Title
	c.Slug = si.Slug
	c.URL = si.URL
	c.GUID = si.GUID
	if c.GUID == "" {
		c.GUID = uuid.NewString()
	}
	c.Caption = si.Caption
	c.SearchDescription = si.SearchDescription
	c.Body = si.Body
	c.PublishDate = si.PublishDate
	c.Live = si.Live
	c.Tags = si.Tags
	c.Authors = seedPeople(si.Authors)
	c.Contributors = seedPeople(si.Contributors)
	c.RemoteMediaURL = si.RemoteMediaURL
	c.RemoteMediaType = si.RemoteMediaType
	c.RemoteMediaSize = si.RemoteMediaSize
	c.RemoteMediaDuration = duration
	c.RemoteMediaThumbnailURL = si.RemoteMediaThumbnailURL

	if si.UploadedMedia != "" {
		m, ok := mediaByFile[si.UploadedMedia]
		if !ok {
			return nil, fmt.Errorf("コンテンツ %q: メディア %q が見つかりません", si.Slug, si.UploadedMedia)
		}
		c.UploadedMedia = m
		c.UploadedMediaKind = model.MediaKind(si.UploadedMediaKind)
		if c.UploadedMediaKind == "" {
			c.UploadedMediaKind = model.MediaKindAudio
		}
	}

	if ep, ok := item.(*model.PodcastEpisode); ok {
		ep.SeasonNumber = si.SeasonNumber
		ep.EpisodeNumber = si.EpisodeNumber
		ep.EpisodeType = si.EpisodeType
		if ep.EpisodeType == "" {
			ep.EpisodeType = "full"
		}
		ep.IsPreview = si.IsPreview
	}
	return item, nil
}

func seedPeople(in []SeedPerson) []model.Person {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Person, len(in))
	for i, p := range in {
		out[i] = model.Person{
			UserName:    p.UserName,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			DisplayName: p.DisplayName,
		}
	}
	return out
}
