package rss

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/rentfree/internal/model"
	"github.com/hitoshi/rentfree/internal/security"
)

// previewLength は本文プレビューの最大文字数。
const previewLength = 400

// RequestContext はアイテム変換時のリクエスト情報。
type RequestContext struct {
	Index   *model.IndexPage
	BaseURL string

	// Private はプレミアムフィードの配信中であることを示す。
	// このときバリアントのアップロードメディアは署名付きURLになる。
	Private bool
	UIDB64  string
	Token   string
}

// Adapter はコンテンツを正規化済みのフィードアイテムに変換する。
type Adapter struct {
	sanitizer security.FeedSanitizer
}

// NewAdapter はAdapterを生成する。
func NewAdapter(sanitizer security.FeedSanitizer) *Adapter {
	return &Adapter{sanitizer: sanitizer}
}

// Adapt はコンテンツを変換する。メディアの排他は保存時に検証済みである前提。
func (a *Adapter) Adapt(item model.Item, rc RequestContext) Item {
	c := item.Base()

	out := Item{
		Title:        itemTitle(c),
		Link:         absoluteURL(rc.BaseURL, itemLink(c)),
		Description:  a.description(c),
		Creators:     personNames(c.Authors),
		Contributors: personNames(c.Contributors),
		Duration:     duration(c),
		Images:       images(c),
		PubDate:      c.PublishDate,
		GUID:         Slugify(rc.Index.FeedTitle()) + "-" + c.GUID,
	}
	if out.Link != "" {
		out.Comments = out.Link + "#comments"
	}
	if enc, ok := enclosure(c, rc); ok {
		out.Enclosures = []Enclosure{enc}
	}
	if rc.Index.Categories {
		out.Categories = append([]string(nil), c.Tags...)
	}

	if ep, ok := item.(*model.PodcastEpisode); ok {
		out.SeasonNumber = ep.SeasonNumber
		if rc.Index.IncludeEpisodeNumber {
			out.EpisodeNumber = ep.EpisodeNumber
		}
		out.EpisodeType = ep.EpisodeType
		out.Preview = ep.IsPreview
	}
	return out
}

// AdaptAll は並び順を保ったまま全件を変換する。
func (a *Adapter) AdaptAll(items []model.Item, rc RequestContext) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = a.Adapt(it, rc)
	}
	return out
}

func itemTitle(c *model.Content) string {
	if !c.IsCanonical() && c.CanonicalTitle != "" {
		return c.CanonicalTitle
	}
	return c.Title
}

func itemLink(c *model.Content) string {
	if !c.IsCanonical() && c.CanonicalURL != "" {
		return c.CanonicalURL
	}
	return c.URL
}

// description は説明文の候補を順に評価し、最初の空でない値を返す。
func (a *Adapter) description(c *model.Content) string {
	candidates := []func() string{
		func() string { return c.SearchDescription },
		func() string {
			if strings.TrimSpace(c.Caption) == "" {
				return ""
			}
			return "<p>" + c.Caption + "</p>" + c.Body
		},
		func() string {
			text := truncateRunes(a.sanitizer.PlainText(c.Body), previewLength)
			if text == "" {
				return ""
			}
			return "<p>" + text + "</p>"
		},
	}
	for _, candidate := range candidates {
		if v := candidate(); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// personNames は人物を「名 姓」、表示名、ユーザー名の順に解決する。
func personNames(people []model.Person) []string {
	var names []string
	for _, p := range people {
		switch {
		case p.FirstName != "" && p.LastName != "":
			names = append(names, p.FirstName+" "+p.LastName)
		case p.DisplayName != "":
			names = append(names, p.DisplayName)
		case p.UserName != "":
			names = append(names, p.UserName)
		}
	}
	return names
}

func duration(c *model.Content) string {
	if c.RemoteMediaDuration > 0 {
		return strconv.Itoa(c.RemoteMediaDuration)
	}
	if c.UploadedMedia != nil && c.UploadedMedia.Duration != "" {
		return c.UploadedMedia.Duration
	}
	return ""
}

func images(c *model.Content) []string {
	var out []string
	if c.UploadedMedia != nil && c.UploadedMedia.ThumbnailURL != "" {
		out = append(out, c.UploadedMedia.ThumbnailURL)
	}
	if c.HasRemoteMedia() && c.RemoteMediaThumbnailURL != "" {
		out = append(out, c.RemoteMediaThumbnailURL)
	}
	return out
}

// enclosure はエンクロージャを決める。
//   - リモートメディア: youtube/vimeo以外ならそのURL
//   - アップロードメディア: プレミアム配信中のバリアントなら署名付きURL、それ以外は保存先URL
func enclosure(c *model.Content, rc RequestContext) (Enclosure, bool) {
	switch {
	case c.HasRemoteMedia():
		if model.IsStreamingOnly(c.RemoteMediaType) {
			return Enclosure{}, false
		}
		return Enclosure{URL: c.RemoteMediaURL, Length: c.RemoteMediaSize, Type: c.RemoteMediaType}, true
	case c.HasUploadedMedia():
		m := c.UploadedMedia
		u := m.URL
		if !c.IsCanonical() && rc.Private && rc.UIDB64 != "" && rc.Token != "" {
			u = PremiumMediaURL(rc.BaseURL, rc.UIDB64, m.ID, rc.Token, m.FileName)
		}
		return Enclosure{URL: u, Length: m.Size, Type: c.UploadedMediaType}, true
	}
	return Enclosure{}, false
}

// PremiumMediaURL はプレミアムメディアのダウンロードURLを組み立てる。
func PremiumMediaURL(baseURL, uidb64 string, mediaID int64, token, fileName string) string {
	return strings.TrimRight(baseURL, "/") + "/premium_media/" + uidb64 + "/" +
		strconv.FormatInt(mediaID, 10) + "/" + token + "/" + fileName
}

func absoluteURL(baseURL, u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(u, "/")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
