// Package feedcheck は生成済みフィードを独立したRSSパーサーで検証する。
package feedcheck

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mmcdole/gofeed"
)

// maxDocumentSize は検証対象として読み込む最大サイズ。
const maxDocumentSize = 32 << 20

// Report は検証結果。
type Report struct {
	Title     string
	FeedType  string
	ItemCount int

	// EnclosureViolations はエンクロージャが2つ以上あるアイテムのGUID。
	EnclosureViolations []string
	// DuplicateGUIDs は重複したGUID（出現順、重複ごとに1回）。
	DuplicateGUIDs []string
	// MissingGUIDs はGUIDを持たないアイテムの位置（0始まり）。
	MissingGUIDs []int
}

// OK は違反がないかどうかを返す。
func (r *Report) OK() bool {
	return r.ItemCount > 0 &&
		len(r.EnclosureViolations) == 0 &&
		len(r.DuplicateGUIDs) == 0 &&
		len(r.MissingGUIDs) == 0
}

// Validate はフィード文書を解析して検証する。
func Validate(doc []byte) (*Report, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("フィードの解析に失敗しました: %w", err)
	}
	return inspect(parsed), nil
}

// Fetch はURLからフィードを取得して検証する。clientがnilならhttp.DefaultClientを使う。
func Fetch(ctx context.Context, client *http.Client, url string) (*Report, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("フィードの取得に失敗しました: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み込みに失敗しました: %w", err)
	}
	return Validate(body)
}

func inspect(f *gofeed.Feed) *Report {
	r := &Report{
		Title:     f.Title,
		FeedType:  f.FeedType + " " + f.FeedVersion,
		ItemCount: len(f.Items),
	}

	seen := make(map[string]int, len(f.Items))
	for i, item := range f.Items {
		if len(item.Enclosures) > 1 {
			r.EnclosureViolations = append(r.EnclosureViolations, item.GUID)
		}
		if item.GUID == "" {
			r.MissingGUIDs = append(r.MissingGUIDs, i)
			continue
		}
		seen[item.GUID]++
		if seen[item.GUID] == 2 {
			r.DuplicateGUIDs = append(r.DuplicateGUIDs, item.GUID)
		}
	}
	return r
}
