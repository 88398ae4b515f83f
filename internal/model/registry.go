package model

import "fmt"

// KindSpec はコンテンツ種別の登録情報。
type KindSpec struct {
	Kind    ContentKind
	Label   string
	Podcast bool // iTunes拡張付きのフィードを出力する
	New     func() Item
}

// kindRegistry は起動時に確定する静的な種別テーブル。順序は固定。
var kindRegistry = []KindSpec{
	{
		Kind:    KindPodcastEpisode,
		Label:   "Podcast episode",
		Podcast: true,
		New:     func() Item { return &PodcastEpisode{} },
	},
	{
		Kind:  KindArticle,
		Label: "Article",
		New:   func() Item { return &Article{} },
	},
}

// Kinds は登録済みの種別を登録順で返す。
func Kinds() []KindSpec {
	out := make([]KindSpec, len(kindRegistry))
	copy(out, kindRegistry)
	return out
}

// LookupKind は種別の登録情報を返す。
func LookupKind(kind ContentKind) (KindSpec, bool) {
	for _, spec := range kindRegistry {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return KindSpec{}, false
}

// NewItem は種別に対応する空のコンテンツを生成する。
func NewItem(kind ContentKind) (Item, error) {
	spec, ok := LookupKind(kind)
	if !ok {
		return nil, fmt.Errorf("unknown content kind: %q", kind)
	}
	return spec.New(), nil
}
