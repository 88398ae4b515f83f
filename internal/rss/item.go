// Package rss はコンテンツをRSS 2.0（iTunes拡張付き）のフィードへ変換する。
//
// Adapter がドメインのコンテンツを正規化済みの Item に変換し、
// Serializer が Channel と Item の列を決定的なXMLに書き出す。
package rss

import "time"

// Flavor はフィードの出力形式。
type Flavor string

const (
	FlavorPodcast Flavor = "podcast"
	FlavorArticle Flavor = "article"
)

// Enclosure はダウンロード可能なメディア。
type Enclosure struct {
	URL    string
	Length int64
	Type   string
}

// Item は正規化済みのフィードアイテム。
type Item struct {
	Title       string
	Link        string
	Comments    string
	Description string // サニタイズ前のHTML

	SeasonNumber  *int
	EpisodeNumber *int
	EpisodeType   string
	Preview       bool

	Creators     []string
	Contributors []string
	Duration     string
	Images       []string
	PubDate      time.Time
	GUID         string

	// Enclosures は2件以上あるとシリアライズ時にエラーになる。
	Enclosures []Enclosure
	Categories []string
}

// Channel はチャンネルレベルのメタデータ。
type Channel struct {
	Flavor      Flavor
	Title       string
	Link        string
	SelfLink    string
	Description string
	Language    string
	Categories  []string

	ItunesType           string
	ItunesAuthor         string
	OwnerName            string
	OwnerEmail           string
	PrimaryCategory      string
	PrimarySubcategory   string
	SecondaryCategory    string
	SecondarySubcategory string
	GoogleCategory       string
	Explicit             bool
	PreviewText          string

	AuthorEmail string
	EditorEmail string

	Copyright     string
	LastBuildDate time.Time
	TTL           *int
	ImageURL      string
}
