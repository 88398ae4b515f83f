package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/rentfree/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// ClassifyError はドメインエラーをHTTPステータスとAPIエラーに変換する。
// 拒否理由は区別せず、常に同じ本文を返す。
func ClassifyError(err error) (int, *model.APIError) {
	switch {
	case errors.Is(err, model.ErrAccessDenied):
		return http.StatusForbidden, model.NewAccessDeniedError()
	case errors.Is(err, model.ErrInvalidFeedState), errors.Is(err, model.ErrMediaNotFound):
		return http.StatusNotFound, model.NewNotFoundError()
	case errors.Is(err, model.ErrMalformedContent), errors.Is(err, model.ErrUnserializableContent):
		return http.StatusInternalServerError, model.NewFeedUnavailableError()
	case errors.Is(err, model.ErrInvalidSignature):
		return http.StatusBadRequest, model.NewInvalidSignatureError()
	default:
		return http.StatusInternalServerError, &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "内部エラーが発生しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
}
