package model

import "time"

// ContentKind はコンテンツの種類を表す。
type ContentKind string

const (
	KindPodcastEpisode ContentKind = "podcast_episode"
	KindArticle        ContentKind = "article"
)

// MediaKind はアップロードメディアの種別（音声/動画）。
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// リモートメディアのうちダウンロード可能なエンクロージャにならない種別。
const (
	RemoteTypeYouTube = "youtube"
	RemoteTypeVimeo   = "vimeo"
)

// IsStreamingOnly はリモートメディア種別がyoutube/vimeoかどうかを返す。
func IsStreamingOnly(remoteType string) bool {
	return remoteType == RemoteTypeYouTube || remoteType == RemoteTypeVimeo
}

// Person はコンテンツの著者・寄稿者を表す。
type Person struct {
	UserName    string
	FirstName   string
	LastName    string
	DisplayName string
}

// Media はアップロード済みのメディアファイル。
type Media struct {
	ID           int64
	Title        string
	FileName     string
	URL          string // ストレージ上の実体URL
	Size         int64
	Duration     string
	ThumbnailURL string
	CreatedAt    time.Time
}

// Content はポッドキャストエピソードと記事に共通する属性。
type Content struct {
	ID          int64
	IndexPageID int64
	Title       string
	Slug        string
	URL         string

	// GUID はバリアント間で共有される安定識別子（一意ではない）。
	GUID              string
	Caption           string
	SearchDescription string
	Body              string
	PublishDate       time.Time
	Live              bool
	Tags              []string
	Authors           []Person
	Contributors      []Person

	// UploadedMedia と RemoteMediaURL は排他。保存時に検証される。
	UploadedMedia     *Media
	UploadedMediaKind MediaKind
	UploadedMediaType string

	RemoteMediaURL          string
	RemoteMediaType         string
	RemoteMediaSize         int64
	RemoteMediaDuration     int // 秒
	RemoteMediaThumbnailURL string

	// ProbeErrors はサイズ取得プローブの連続失敗回数。
	ProbeErrors int

	// パーソナライズ情報。CanonicalID == 0 ならカノニカルページ自身。
	CanonicalID    int64
	SegmentID      int64
	CanonicalTitle string
	CanonicalURL   string
}

// Base は共通属性への参照を返す。
func (c *Content) Base() *Content { return c }

// IsCanonical はカノニカル（非パーソナライズ）ページかどうかを返す。
func (c *Content) IsCanonical() bool { return c.CanonicalID == 0 }

// HasRemoteMedia はリモートメディアが設定されているかを返す。
func (c *Content) HasRemoteMedia() bool { return c.RemoteMediaURL != "" }

// HasUploadedMedia はアップロードメディアが設定されているかを返す。
func (c *Content) HasUploadedMedia() bool { return c.UploadedMedia != nil }

// Item はフィードに載るコンテンツの和型。
// PodcastEpisode と Article のみが実装する。
type Item interface {
	Base() *Content
	Kind() ContentKind
}

// PodcastEpisode はポッドキャストのエピソード。
type PodcastEpisode struct {
	Content
	SeasonNumber  *int
	EpisodeNumber *int
	EpisodeType   string // full, trailer, bonus
	IsPreview     bool
}

// Kind はKindPodcastEpisodeを返す。
func (*PodcastEpisode) Kind() ContentKind { return KindPodcastEpisode }

// Article は記事ページ。
type Article struct {
	Content
}

// Kind はKindArticleを返す。
func (*Article) Kind() ContentKind { return KindArticle }
