// Package content はコンテンツ保存時の検証と派生値の計算を提供する。
package content

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/hitoshi/rentfree/internal/model"
)

// NormalizeDuration は "SS"・"MM:SS"・"HH:MM:SS" 形式の時間を秒に変換する。
// 空文字は0を返す。
func NormalizeDuration(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}

	total := 0
	unit := 1
	for i := len(parts) - 1; i >= 0; i-- {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		total += n * unit
		unit *= 60
	}
	return total, nil
}

// NormalizeTTL はRSSのttl設定（"HH:MM" または "MM"）を分に変換する。
// 空文字はnil（ttlなし）を返す。
func NormalizeTTL(raw string) (*int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if strings.Count(raw, ":") > 1 {
		return nil, fmt.Errorf("invalid ttl %q", raw)
	}
	minutes, err := NormalizeDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ttl %q", raw)
	}
	return &minutes, nil
}

// uploadedMediaTypes はメディア種別と拡張子からMIMEタイプへの対応表。
var uploadedMediaTypes = map[model.MediaKind]map[string]string{
	model.MediaKindAudio: {
		"m4a": "audio/x-m4a",
		"aac": "audio/x-m4a",
		"mp4": "audio/x-m4a",
		"mp3": "audio/mpeg",
		"oga": "audio/ogg",
		"ogg": "audio/ogg",
		"wav": "audio/wav",
	},
	model.MediaKindVideo: {
		"mp4":  "video/x-m4v",
		"m4v":  "video/x-m4v",
		"ogv":  "video/ogg",
		"ogg":  "video/ogg",
		"3gp":  "video/3gpp",
		"webm": "video/webm",
	},
}

// DeriveUploadedMediaType はファイル拡張子と宣言されたメディア種別からMIMEタイプを決める。
// 対応表にない組み合わせは空文字。
func DeriveUploadedMediaType(fileName string, kind model.MediaKind) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	return uploadedMediaTypes[kind][ext]
}
