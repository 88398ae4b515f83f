package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/rentfree/internal/billing"
	"github.com/hitoshi/rentfree/internal/middleware"
	"github.com/hitoshi/rentfree/internal/model"
)

// maxWebhookBodySize はWebhook本文の上限（1MB）。
const maxWebhookBodySize = 1 << 20

// BillingServiceInterface は課金Webhookハンドラーが必要とするサービスインターフェース。
type BillingServiceInterface interface {
	Handle(ctx context.Context, signature string, body []byte) (string, error)
}

// BillingHandler は課金プロバイダーからのWebhookを受け取るHTTPハンドラー。
type BillingHandler struct {
	service BillingServiceInterface
	logger  *slog.Logger
}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler(service BillingServiceInterface, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{service: service, logger: logger}
}

// webhookResponse はWebhookの処理結果。
type webhookResponse struct {
	Outcome string `json:"outcome"`
}

// Receive はWebhookを検証して適用する。
// POST /webhooks/billing
func (h *BillingHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("本文を読み取れません。"))
		return
	}

	outcome, err := h.service.Handle(r.Context(), r.Header.Get(billing.SignatureHeader), body)
	switch outcome {
	case billing.OutcomeInvalidSignature:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidSignatureError())
		return
	case billing.OutcomeInvalidPayload:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("イベントの形式が不正です。"))
		return
	}
	if err != nil {
		h.logger.Error("Webhookの処理に失敗しました",
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(webhookResponse{Outcome: outcome})
}
