package security

import (
	"strings"
	"testing"
)

func TestFeedSanitizer_SanitizeChannel(t *testing.T) {
	s := NewFeedSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"許可外タグは中身を残して除去", "<p>Hello <b>bold</b></p>", "<p>Hello bold</p>"},
		{"scriptは中身ごと除去", "<p>ok</p><script>alert(1)</script>", "<p>ok</p>"},
		{"先頭の空白を除去", "  \n<p>lead</p>", "<p>lead</p>"},
		{"リストは残す", "<ul><li>one</li></ul>", "<ul><li>one</li></ul>"},
		{"空文字", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeChannel(tt.in); got != tt.want {
				t.Errorf("SanitizeChannel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeedSanitizer_SanitizeItem(t *testing.T) {
	s := NewFeedSanitizer()

	got := s.SanitizeItem(`<p>See <a href="#notes">notes</a> and <a href="https://example.com/x">site</a></p>`)

	if !strings.Contains(got, "See notes and") {
		t.Errorf("フラグメントリンクが展開されていない: %q", got)
	}
	if strings.Contains(got, "#notes") {
		t.Errorf("フラグメントリンクが残っている: %q", got)
	}
	if !strings.Contains(got, `<a href="https://example.com/x">site</a>`) {
		t.Errorf("外部リンクが失われた: %q", got)
	}
	if !strings.Contains(got, "</p><br") {
		t.Errorf("段落の後に改行が挿入されていない: %q", got)
	}
}

func TestFeedSanitizer_SanitizeItem_DropsDangerousLinks(t *testing.T) {
	s := NewFeedSanitizer()

	got := s.SanitizeItem(`<p><a href="javascript:alert(1)">x</a><img src="https://example.com/a.png" onerror="x()"></p>`)
	if strings.Contains(got, "javascript") {
		t.Errorf("javascriptスキームが残っている: %q", got)
	}
	if strings.Contains(got, "<img") || strings.Contains(got, "onerror") {
		t.Errorf("許可外の要素/属性が残っている: %q", got)
	}
}

func TestFeedSanitizer_Idempotent(t *testing.T) {
	s := NewFeedSanitizer()
	in := `<p>One <a href="#a">a</a></p><ul><li>two</li></ul>`
	if s.SanitizeChannel(in) != s.SanitizeChannel(in) {
		t.Error("同一入力で異なる出力")
	}
	if s.SanitizeItem(in) != s.SanitizeItem(in) {
		t.Error("同一入力で異なる出力")
	}
}

func TestFeedSanitizer_PlainText(t *testing.T) {
	s := NewFeedSanitizer()
	got := s.PlainText("<p>Fish &amp; chips</p><p>second</p>")
	if got != "Fish & chips second" {
		t.Errorf("PlainText() = %q", got)
	}
}

func TestUnwrapFragmentAnchors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"フラグメントなしは変更しない", `<p><a href="https://a.example/">a</a></p>`, `<p><a href="https://a.example/">a</a></p>`},
		{"フラグメントリンクを展開", `<p>go <a href="#top">top</a>!</p>`, `<p>go top!</p>`},
		{"入れ子の子要素も残す", `<p><a href="#x">a<br/>b</a></p>`, `<p>a<br/>b</p>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnwrapFragmentAnchors(tt.in); got != tt.want {
				t.Errorf("UnwrapFragmentAnchors() = %q, want %q", got, tt.want)
			}
		})
	}
}
