// Package billing は外部課金サービスのWebhookを受け取り、ユーザーの購読階層とステータスを同期する。
//
// 課金処理そのものは扱わない。署名検証を通過したイベントは信頼済みの入力として扱う。
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/rentfree/internal/metrics"
	"github.com/hitoshi/rentfree/internal/model"
)

// ErrInvalidPayload はイベント本文の形式不正を示す。
var ErrInvalidPayload = errors.New("invalid webhook payload")

// イベント種別
const (
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
)

// 処理結果（メトリクスのoutcomeラベル）
const (
	OutcomeApplied          = "applied"
	OutcomeIgnored          = "ignored"
	OutcomeUnknownUser      = "unknown_user"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeInvalidPayload   = "invalid_payload"
	OutcomeError            = "error"
)

// Event はWebhookイベント本文。
type Event struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data SubscriptionData `json:"data"`
}

// SubscriptionData は購読イベントの中身。
type SubscriptionData struct {
	Email      string `json:"email"`
	Tier       *int   `json:"tier"`
	Status     string `json:"status"`
	CustomerID string `json:"customer_id"`
}

// SubscriptionUpdater は購読状態の書き込みインターフェース。
type SubscriptionUpdater interface {
	UpdateSubscription(ctx context.Context, email string, tier *int, status model.SubscriptionStatus, customerID string) (bool, error)
}

// SignatureVerifier はWebhook署名の検証インターフェース。
type SignatureVerifier interface {
	Verify(header string, body []byte) error
}

// Service はWebhookイベントの検証と適用を行う。
type Service struct {
	users    SubscriptionUpdater
	verifier SignatureVerifier
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(users SubscriptionUpdater, verifier SignatureVerifier, collector metrics.MetricsCollector, logger *slog.Logger) *Service {
	if collector == nil {
		collector = metrics.Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		verifier: verifier,
		metrics:  collector,
		logger:   logger,
	}
}

// Handle は署名を検証し、イベントを適用して処理結果を返す。
// 署名不正は model.ErrInvalidSignature、本文不正は ErrInvalidPayload をラップして返す。
// 未知のイベントと未登録ユーザーはエラーにせず無視する。
func (s *Service) Handle(ctx context.Context, signature string, body []byte) (string, error) {
	if err := s.verifier.Verify(signature, body); err != nil {
		s.metrics.RecordWebhookEvent("unknown", OutcomeInvalidSignature)
		s.logger.Warn("Webhook署名の検証に失敗しました", slog.String("error", err.Error()))
		return OutcomeInvalidSignature, err
	}

	event, err := DecodeEvent(body)
	if err != nil {
		s.metrics.RecordWebhookEvent("unknown", OutcomeInvalidPayload)
		return OutcomeInvalidPayload, err
	}

	outcome, err := s.Apply(ctx, event)
	s.metrics.RecordWebhookEvent(event.Type, outcome)
	return outcome, err
}

// Apply は検証済みイベントをユーザーに反映する。
func (s *Service) Apply(ctx context.Context, event *Event) (string, error) {
	var (
		tier   *int
		status model.SubscriptionStatus
	)

	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		st, err := parseStatus(event.Data.Status)
		if err != nil {
			return OutcomeInvalidPayload, err
		}
		if event.Data.Tier != nil && *event.Data.Tier < 0 {
			return OutcomeInvalidPayload, fmt.Errorf("負の階層 %d: %w", *event.Data.Tier, ErrInvalidPayload)
		}
		tier, status = event.Data.Tier, st
	case EventSubscriptionDeleted:
		tier, status = nil, model.StatusCanceled
	default:
		s.logger.Info("未対応のWebhookイベントを無視しました",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type),
		)
		return OutcomeIgnored, nil
	}

	email := strings.TrimSpace(event.Data.Email)
	if email == "" {
		return OutcomeInvalidPayload, fmt.Errorf("emailがありません: %w", ErrInvalidPayload)
	}

	found, err := s.users.UpdateSubscription(ctx, email, tier, status, event.Data.CustomerID)
	if err != nil {
		return OutcomeError, fmt.Errorf("購読状態の更新に失敗しました: %w", err)
	}
	if !found {
		s.logger.Warn("Webhookの対象ユーザーが存在しません",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type),
		)
		return OutcomeUnknownUser, nil
	}

	s.logger.Info("購読状態を同期しました",
		slog.String("event_id", event.ID),
		slog.String("type", event.Type),
		slog.String("status", string(status)),
	)
	return OutcomeApplied, nil
}

// DecodeEvent はイベント本文をデコードする。
func DecodeEvent(body []byte) (*Event, error) {
	var event Event
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&event); err != nil {
		return nil, fmt.Errorf("イベントのデコードに失敗しました: %v: %w", err, ErrInvalidPayload)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("typeがありません: %w", ErrInvalidPayload)
	}
	return &event, nil
}

var knownStatuses = map[model.SubscriptionStatus]bool{
	model.StatusActive:     true,
	model.StatusTrialing:   true,
	model.StatusPastDue:    true,
	model.StatusUnpaid:     true,
	model.StatusIncomplete: true,
	model.StatusCanceled:   true,
}

func parseStatus(raw string) (model.SubscriptionStatus, error) {
	st := model.SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !knownStatuses[st] {
		return "", fmt.Errorf("未知の購読ステータス %q: %w", raw, ErrInvalidPayload)
	}
	return st, nil
}
