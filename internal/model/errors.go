// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// フィード生成・配信パイプラインのエラー分類。
// 呼び出し側は fmt.Errorf の %w でラップし、errors.Is で判定する。
var (
	// ErrAccessDenied はトークン不正・購読状態不備などによるアクセス拒否。
	// どの検査で失敗したかは外部に漏らさない。
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidFeedState は親インデックスページが存在しない、または配信対象が0件であることを示す。
	ErrInvalidFeedState = errors.New("invalid feed state")

	// ErrMalformedContent はコンテンツの不変条件違反（メディアの二重設定、エンクロージャ複数など）。
	// 回復不能であり、部分的なフィードを出力してはならない。
	ErrMalformedContent = errors.New("malformed content invariant")

	// ErrUnserializableContent はXML 1.0で表現できない制御文字を含むコンテンツ。
	ErrUnserializableContent = errors.New("unserializable content")

	// ErrMediaNotFound はプレミアムメディアのファイルが存在しないことを示す。
	ErrMediaNotFound = errors.New("media not found")

	// ErrInvalidSignature は課金Webhookの署名検証失敗を示す。
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: access, feed, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAccessDenied     = "ACCESS_DENIED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeFeedUnavailable  = "FEED_UNAVAILABLE"
	ErrCodeInvalidSignature = "INVALID_SIGNATURE"
	ErrCodeInvalidPayload   = "INVALID_PAYLOAD"
)

// NewAccessDeniedError はアクセス拒否エラーを生成する。
// 拒否理由の詳細は含めない。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "アクセスが拒否されました。",
		Category: "access",
		Action:   "購読状態とリンクが有効か確認してください。",
	}
}

// NewNotFoundError は対象未検出エラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "指定されたリソースが見つかりません。",
		Category: "feed",
		Action:   "URLを確認してください。",
	}
}

// NewFeedUnavailableError はフィード生成が不変条件違反で中断された場合のエラーを生成する。
func NewFeedUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedUnavailable,
		Message:  "フィードを生成できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidSignatureError はWebhook署名不正エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "署名の検証に失敗しました。",
		Category: "validation",
		Action:   "Webhookの署名シークレットを確認してください。",
	}
}

// NewInvalidPayloadError はリクエストボディ不正エラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "イベントの形式を確認してください。",
	}
}
