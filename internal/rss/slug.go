package rss

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slugify はタイトルをURL向けのスラッグに変換する。
// NFKD分解後にASCII以外を落とし、英数字・アンダースコア・ハイフン以外を除去、
// 空白とハイフンの連続を1つのハイフンにまとめる。
func Slugify(s string) string {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(s) {
		if r < unicode.MaxASCII {
			ascii.WriteRune(unicode.ToLower(r))
		}
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range ascii.String() {
		switch {
		case r == '-' || unicode.IsSpace(r):
			pendingDash = true
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_")
}
