package rss

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hitoshi/rentfree/internal/model"
)

// XML 1.0 で表現できない制御文字。
var illegalControlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

// attrs は要素の属性。出力時は常にキーの昇順に並べる。
type attrs map[string]string

// xmlWriter はバッファに要素を書き出すXMLライター。
// 最初のエラーを保持し、以降の書き込みはすべて無視する。
type xmlWriter struct {
	buf bytes.Buffer
	err error
}

func (w *xmlWriter) startDocument() {
	w.buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
}

func (w *xmlWriter) start(name string, a attrs) {
	if w.err != nil {
		return
	}
	w.buf.WriteByte('<')
	w.buf.WriteString(name)
	w.writeAttrs(name, a)
	w.buf.WriteByte('>')
}

func (w *xmlWriter) end(name string) {
	if w.err != nil {
		return
	}
	w.buf.WriteString("</")
	w.buf.WriteString(name)
	w.buf.WriteByte('>')
}

// empty は子を持たない要素を自己終了タグで書く。
func (w *xmlWriter) empty(name string, a attrs) {
	if w.err != nil {
		return
	}
	w.buf.WriteByte('<')
	w.buf.WriteString(name)
	w.writeAttrs(name, a)
	w.buf.WriteString("/>")
}

// text はテキストのみを持つ要素を書く。textが空なら自己終了タグになる。
func (w *xmlWriter) text(name, text string, a attrs) {
	if w.err != nil {
		return
	}
	if text == "" {
		w.empty(name, a)
		return
	}
	if err := checkChars(name, text); err != nil {
		w.err = err
		return
	}
	w.start(name, a)
	w.buf.WriteString(escapeText(text))
	w.end(name)
}

// cdata はCDATAセクションで内容を包んだ要素を書く。
// 内容中の "]]>" はセクションを分割して表現する。
func (w *xmlWriter) cdata(name, content string) {
	if w.err != nil {
		return
	}
	if err := checkChars(name, content); err != nil {
		w.err = err
		return
	}
	w.start(name, nil)
	w.buf.WriteString("<![CDATA[")
	w.buf.WriteString(strings.ReplaceAll(content, "]]>", "]]]]><![CDATA[>"))
	w.buf.WriteString("]]>")
	w.end(name)
}

func (w *xmlWriter) writeAttrs(name string, a attrs) {
	if len(a) == 0 {
		return
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := a[k]
		if err := checkChars(name+"@"+k, v); err != nil {
			w.err = err
			return
		}
		w.buf.WriteByte(' ')
		w.buf.WriteString(k)
		w.buf.WriteString(`="`)
		w.buf.WriteString(escapeAttr(v))
		w.buf.WriteByte('"')
	}
}

// bytes は書き込み結果を返す。エラーがあれば途中までの出力は返さない。
func (w *xmlWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

func checkChars(where, s string) error {
	if loc := illegalControlChars.FindStringIndex(s); loc != nil {
		return fmt.Errorf("%s: 制御文字 %#x はXML 1.0で表現できません: %w",
			where, s[loc[0]], model.ErrUnserializableContent)
	}
	return nil
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\n", "&#10;",
	"\r", "&#13;",
	"\t", "&#9;",
)

func escapeText(s string) string { return textEscaper.Replace(s) }

func escapeAttr(s string) string { return attrEscaper.Replace(s) }
