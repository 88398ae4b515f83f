package rss

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hitoshi/rentfree/internal/model"
	"github.com/hitoshi/rentfree/internal/security"
)

// 名前空間
const (
	nsItunes     = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	nsDC         = "http://purl.org/dc/elements/1.1/"
	nsGooglePlay = "http://www.google.com/schemas/play-podcasts/1.0"
	nsSpotify    = "http://www.spotify.com/ns/rss"
	nsMedia      = "http://search.yahoo.com/mrss/"
	nsAtom       = "http://www.w3.org/2005/Atom"
)

// flatCategories はサブカテゴリを持てないiTunesカテゴリ。
// "Goverment" は既存データの綴り誤りも受け付ける。
var flatCategories = map[string]bool{
	"Government": true,
	"Goverment":  true,
	"History":    true,
	"Technology": true,
	"True Crime": true,
}

// Serializer はチャンネルとアイテム列をRSS文書に変換する。
// 同じ入力からは常にバイト単位で同一の出力を返す。
type Serializer struct {
	sanitizer security.FeedSanitizer
}

// NewSerializer はSerializerを生成する。
func NewSerializer(sanitizer security.FeedSanitizer) *Serializer {
	return &Serializer{sanitizer: sanitizer}
}

// Serialize はRSS文書を生成する。
// エンクロージャが2件以上のアイテムは model.ErrMalformedContent、
// 制御文字を含む値は model.ErrUnserializableContent で失敗し、部分的な出力は返さない。
func (s *Serializer) Serialize(ch Channel, items []Item) ([]byte, error) {
	for i := range items {
		if n := len(items[i].Enclosures); n > 1 {
			return nil, fmt.Errorf("アイテム %q のエンクロージャが%d件あります（最大1件）: %w",
				items[i].GUID, n, model.ErrMalformedContent)
		}
	}

	w := &xmlWriter{}
	w.startDocument()
	w.start("rss", rootAttrs(ch.Flavor))
	w.start("channel", nil)

	if ch.Flavor == FlavorArticle {
		s.writeArticleChannel(w, ch)
	} else {
		s.writePodcastChannel(w, ch)
	}

	for i := range items {
		w.start("item", nil)
		if ch.Flavor == FlavorArticle {
			s.writeArticleItem(w, &items[i])
		} else {
			s.writePodcastItem(w, ch, &items[i])
		}
		w.end("item")
	}

	w.end("channel")
	w.end("rss")
	return w.bytes()
}

func rootAttrs(flavor Flavor) attrs {
	a := attrs{
		"version":    "2.0",
		"xmlns:atom": nsAtom,
		"xmlns:dc":   nsDC,
	}
	if flavor != FlavorArticle {
		a["xmlns:itunes"] = nsItunes
		a["xmlns:googleplay"] = nsGooglePlay
		a["xmlns:spotify"] = nsSpotify
		a["xmlns:media"] = nsMedia
	}
	return a
}

func (s *Serializer) writePodcastChannel(w *xmlWriter, ch Channel) {
	w.text("title", ch.Title, nil)
	w.text("link", ch.Link, nil)
	writeSelfLink(w, ch)
	w.cdata("description", s.sanitizer.SanitizeChannel(ch.Description))
	if ch.Language != "" {
		w.text("language", ch.Language, nil)
	}
	for _, cat := range ch.Categories {
		w.text("category", cat, nil)
	}
	if ch.ItunesType != "" {
		w.text("itunes:type", ch.ItunesType, nil)
	}
	if ch.ItunesAuthor != "" {
		w.text("itunes:author", ch.ItunesAuthor, nil)
	}
	if ch.OwnerName != "" || ch.OwnerEmail != "" {
		w.start("itunes:owner", nil)
		if ch.OwnerName != "" {
			w.text("itunes:name", ch.OwnerName, nil)
		}
		if ch.OwnerEmail != "" {
			w.text("itunes:email", ch.OwnerEmail, nil)
		}
		w.end("itunes:owner")
	}
	writeItunesCategory(w, ch.PrimaryCategory, ch.PrimarySubcategory)
	writeItunesCategory(w, ch.SecondaryCategory, ch.SecondarySubcategory)
	if ch.GoogleCategory != "" {
		w.empty("googleplay:category", attrs{"text": ch.GoogleCategory})
	}
	w.text("itunes:explicit", strconv.FormatBool(ch.Explicit), nil)
	w.text("googleplay:explicit", yesNo(ch.Explicit), nil)
	if ch.Copyright != "" {
		w.text("copyright", ch.Copyright, nil)
	}
	if !ch.LastBuildDate.IsZero() {
		w.text("lastBuildDate", rfc2822(ch.LastBuildDate), nil)
	}
	if ch.TTL != nil {
		w.text("ttl", strconv.Itoa(*ch.TTL), nil)
	}
	if ch.ImageURL != "" {
		w.empty("itunes:image", attrs{"href": ch.ImageURL})
	}
	writeImage(w, ch)
}

func (s *Serializer) writeArticleChannel(w *xmlWriter, ch Channel) {
	w.text("title", ch.Title, nil)
	w.text("link", ch.Link, nil)
	writeSelfLink(w, ch)
	w.cdata("description", s.sanitizer.SanitizeChannel(ch.Description))
	if ch.AuthorEmail != "" {
		w.text("author", ch.AuthorEmail, nil)
	}
	if ch.Language != "" {
		w.text("language", ch.Language, nil)
	}
	for _, cat := range ch.Categories {
		w.text("category", cat, nil)
	}
	if ch.EditorEmail != "" {
		w.text("managingEditor", ch.EditorEmail, nil)
	}
	if ch.Copyright != "" {
		w.text("copyright", ch.Copyright, nil)
	}
	if !ch.LastBuildDate.IsZero() {
		w.text("lastBuildDate", rfc2822(ch.LastBuildDate), nil)
	}
	if ch.TTL != nil {
		w.text("ttl", strconv.Itoa(*ch.TTL), nil)
	}
	writeImage(w, ch)
}

func writeSelfLink(w *xmlWriter, ch Channel) {
	if ch.SelfLink == "" {
		return
	}
	w.empty("atom:link", attrs{
		"href": ch.SelfLink,
		"rel":  "self",
		"type": "application/rss+xml",
	})
}

func writeImage(w *xmlWriter, ch Channel) {
	if ch.ImageURL == "" {
		return
	}
	w.start("image", nil)
	w.text("url", ch.ImageURL, nil)
	w.text("title", ch.Title, nil)
	w.text("link", ch.Link, nil)
	w.end("image")
}

// writeItunesCategory はカテゴリを書く。サブカテゴリを持てないカテゴリでは
// 設定があってもサブカテゴリを出力しない。
func writeItunesCategory(w *xmlWriter, category, subcategory string) {
	if category == "" {
		return
	}
	if subcategory == "" || flatCategories[category] {
		w.empty("itunes:category", attrs{"text": category})
		return
	}
	w.start("itunes:category", attrs{"text": category})
	w.empty("itunes:category", attrs{"text": subcategory})
	w.end("itunes:category")
}

func (s *Serializer) writePodcastItem(w *xmlWriter, ch Channel, it *Item) {
	title := it.Title
	if it.Preview && ch.PreviewText != "" {
		title = ch.PreviewText + " " + title
	}
	w.text("title", title, nil)
	w.text("link", it.Link, nil)
	if it.SeasonNumber != nil {
		w.text("itunes:season", strconv.Itoa(*it.SeasonNumber), nil)
	}
	if it.EpisodeNumber != nil {
		w.text("itunes:episode", strconv.Itoa(*it.EpisodeNumber), nil)
	}
	s.writeItemDescription(w, it)
	if it.EpisodeType != "" {
		w.text("itunes:episodeType", it.EpisodeType, nil)
	}
	writePeople(w, it)
	if it.Duration != "" {
		w.text("itunes:duration", it.Duration, nil)
	}
	for _, img := range it.Images {
		w.empty("itunes:image", attrs{"href": img})
	}
	writeItemTail(w, it)
}

func (s *Serializer) writeArticleItem(w *xmlWriter, it *Item) {
	w.text("title", it.Title, nil)
	w.text("link", it.Link, nil)
	s.writeItemDescription(w, it)
	writePeople(w, it)
	writeItemTail(w, it)
}

func (s *Serializer) writeItemDescription(w *xmlWriter, it *Item) {
	if it.Description == "" {
		return
	}
	w.cdata("description", s.sanitizer.SanitizeItem(it.Description))
}

func writePeople(w *xmlWriter, it *Item) {
	for _, name := range it.Creators {
		w.text("dc:creator", name, nil)
	}
	for _, name := range it.Contributors {
		w.text("dc:contributor", name, nil)
	}
}

// writeItemTail は pubDate 以降の要素を書く。
func writeItemTail(w *xmlWriter, it *Item) {
	if !it.PubDate.IsZero() {
		w.text("pubDate", rfc2822(it.PubDate), nil)
	}
	if it.Comments != "" {
		w.text("comments", it.Comments, nil)
	}
	if it.GUID != "" {
		w.text("guid", it.GUID, attrs{"isPermaLink": "false"})
	}
	for _, enc := range it.Enclosures {
		w.empty("enclosure", attrs{
			"url":    enc.URL,
			"length": strconv.FormatInt(enc.Length, 10),
			"type":   enc.Type,
		})
	}
	for _, cat := range it.Categories {
		w.text("category", cat, nil)
	}
}

func rfc2822(t time.Time) string {
	return t.Format(time.RFC1123Z)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
