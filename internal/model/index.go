package model

// IndexPage はコンテンツの親となるインデックスページとそのRSS設定。
type IndexPage struct {
	ID    int64
	Slug  string
	Kind  ContentKind // 子コンテンツの種別
	Title string
	URL   string

	RSSTitle             string
	RSSDescription       string
	RSSItunesDescription string
	RSSTTL               *int // 分
	ImageURL             string
	PremiumImageURL      string

	ItunesPrimaryCategory      string
	ItunesPrimarySubcategory   string
	ItunesSecondaryCategory    string
	ItunesSecondarySubcategory string
	GoogleCategory             string

	PreviewText          string
	OmitPreviews         bool
	Explicit             bool
	CombinePrivate       bool
	IncludeEpisodeNumber bool
	ItunesType           string // episodic, serial
	ItunesAuthor         string
	ItunesOwner          string
	ItunesOwnerEmail     string
	Copyright            string

	// 記事インデックス向け
	Categories  bool // タグをカテゴリとして出力する
	AuthorEmail string
	EditorEmail string
	Tags        []string
}

// FeedTitle はRSSタイトル。未設定ならページタイトルを返す。
func (p *IndexPage) FeedTitle() string {
	if p.RSSTitle != "" {
		return p.RSSTitle
	}
	return p.Title
}
