package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/rentfree/internal/model"
)

// SignatureHeader は署名を運ぶHTTPヘッダー名。
const SignatureHeader = "Billing-Signature"

// DefaultTolerance は許容するタイムスタンプのずれ。
const DefaultTolerance = 5 * time.Minute

// Signature は "t=<unix>,v1=<hex>" 形式のヘッダーを分解したもの。
// v1 は鍵ローテーション中に複数付くことがある。
type Signature struct {
	Timestamp int64
	V1        [][]byte
}

// ParseSignature はBilling-Signatureヘッダーを解析する。
func ParseSignature(header string) (*Signature, error) {
	if strings.TrimSpace(header) == "" {
		return nil, fmt.Errorf("署名ヘッダーがありません: %w", model.ErrInvalidSignature)
	}

	sig := &Signature{}
	hasTimestamp := false
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("タイムスタンプ %q: %w", value, model.ErrInvalidSignature)
			}
			sig.Timestamp = ts
			hasTimestamp = true
		case "v1":
			mac, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			sig.V1 = append(sig.V1, mac)
		}
	}

	if !hasTimestamp || len(sig.V1) == 0 {
		return nil, fmt.Errorf("署名ヘッダーの形式が不正です: %w", model.ErrInvalidSignature)
	}
	return sig, nil
}

// Verifier はWebhook署名を検証する。
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier はVerifierを生成する。toleranceが0以下ならDefaultToleranceを使う。
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Sign は指定時刻のヘッダー値を生成する。テストと動作確認用。
func (v *Verifier) Sign(body []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(v.mac(ts, body)))
}

// Verify はヘッダーとボディの組を検証する。失敗時は model.ErrInvalidSignature をラップして返す。
func (v *Verifier) Verify(header string, body []byte) error {
	sig, err := ParseSignature(header)
	if err != nil {
		return err
	}

	skew := v.now().Sub(time.Unix(sig.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return fmt.Errorf("タイムスタンプが許容範囲外です (%s): %w", skew.Round(time.Second), model.ErrInvalidSignature)
	}

	expected := v.mac(sig.Timestamp, body)
	for _, candidate := range sig.V1 {
		if hmac.Equal(candidate, expected) {
			return nil
		}
	}
	return fmt.Errorf("署名が一致しません: %w", model.ErrInvalidSignature)
}

func (v *Verifier) mac(ts int64, body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(body)
	return h.Sum(nil)
}
