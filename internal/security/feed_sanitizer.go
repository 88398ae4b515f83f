// Package security はアプリケーションのセキュリティ機能を提供する。
//
// FeedSanitizer はフィードに埋め込むHTML（チャンネル説明・アイテム説明）を
// 許可リスト方式で整形する。ポッドキャストアプリが解釈できるタグだけを残し、
// ページ内フラグメントへのリンクはフィード上で意味を持たないため外す。
package security

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FeedSanitizer はフィード用HTMLのサニタイズ機能のインターフェース。
type FeedSanitizer interface {
	// SanitizeChannel はチャンネル説明を許可タグのみに整形し、先頭の空白を除く。
	SanitizeChannel(rawHTML string) string
	// SanitizeItem はアイテム説明を整形する。段落の後に改行を挿入し、
	// "#"で始まるhrefのリンクは中身のテキストだけを残す。
	SanitizeItem(rawHTML string) string
	// PlainText はHTMLからテキストのみを取り出す。
	PlainText(rawHTML string) string
}

type feedSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewFeedSanitizer はFeedSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, ul, li, a, br（それ以外のタグは除去し中身のテキストは残す）
//   - aタグ: href属性のみ許可。相対URLとフラグメントも許可する
//   - script, style は中身ごと除去
func NewFeedSanitizer() *feedSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "ul", "li", "br")
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")

	return &feedSanitizer{
		policy: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// SanitizeChannel はチャンネル説明を整形する。
func (s *feedSanitizer) SanitizeChannel(rawHTML string) string {
	return strings.TrimLeft(s.policy.Sanitize(rawHTML), " \t\r\n")
}

// SanitizeItem はアイテム説明を整形する。
func (s *feedSanitizer) SanitizeItem(rawHTML string) string {
	withBreaks := strings.ReplaceAll(rawHTML, "</p>", "</p><br />")
	clean := strings.TrimLeft(s.policy.Sanitize(withBreaks), " \t\r\n")
	return UnwrapFragmentAnchors(clean)
}

// PlainText はHTMLタグをすべて除去したテキストを返す。
func (s *feedSanitizer) PlainText(rawHTML string) string {
	text := html.UnescapeString(s.strict.Sanitize(strings.ReplaceAll(rawHTML, ">", "> ")))
	return strings.Join(strings.Fields(text), " ")
}

// UnwrapFragmentAnchors は href が "#" で始まる a 要素を子ノードで置き換える。
// 解析に失敗した場合は入力をそのまま返す。
func UnwrapFragmentAnchors(fragment string) string {
	if !strings.Contains(fragment, "#") {
		return fragment
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return fragment
	}

	for _, n := range nodes {
		body.AppendChild(n)
	}
	unwrap(body)

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return fragment
		}
	}
	return buf.String()
}

func unwrap(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		unwrap(c)
		if c.Type == html.ElementNode && c.DataAtom == atom.A && isFragmentLink(c) {
			for gc := c.FirstChild; gc != nil; {
				gnext := gc.NextSibling
				c.RemoveChild(gc)
				n.InsertBefore(gc, c)
				gc = gnext
			}
			n.RemoveChild(c)
		}
		c = next
	}
}

func isFragmentLink(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "href" {
			return strings.HasPrefix(a.Val, "#")
		}
	}
	return false
}
