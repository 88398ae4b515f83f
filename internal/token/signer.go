// Package token はプレミアムフィード/メディアURL用のステートレスな署名トークンを提供する。
//
// トークンは "タイムスタンプ(36進数)-ハッシュ" の形式で、ハッシュには
// ユーザーID・ダウンロードリセット回数・購読階層・UUID・購読ステータスが含まれる。
// いずれかが変化すると既発行のトークンはすべて無効になる。
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/rentfree/internal/model"
)

// DefaultTimeout はトークンの有効期間（約100年）。
const DefaultTimeout = 3153600000 * time.Second

// keySalt はHMAC鍵の導出に使う用途別ソルト。
const keySalt = "rentfree.token.PremiumSubscriberTokenGenerator"

// epoch はタイムスタンプの起点。
var epoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Signer はプレミアムトークンの発行と検証を行う。
type Signer struct {
	key     []byte
	timeout time.Duration
	now     func() time.Time
}

// NewSigner はSignerを生成する。timeoutが0以下ならDefaultTimeoutを使う。
func NewSigner(secret string, timeout time.Duration) *Signer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sum := sha256.Sum256([]byte(keySalt + secret))
	return &Signer{
		key:     sum[:],
		timeout: timeout,
		now:     time.Now,
	}
}

// Sign はユーザーの現在の購読状態に対するトークンを発行する。
func (s *Signer) Sign(user *model.User) string {
	return s.makeToken(user, s.secondsSinceEpoch(s.now()))
}

// Verify はトークンがユーザーの現在の状態に対して有効かを判定する。
// 形式不正・改ざん・期限切れはすべてfalseを返し、panicしない。
func (s *Signer) Verify(user *model.User, token string) bool {
	if user == nil || token == "" {
		return false
	}

	parts := strings.Split(token, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}

	ts, err := strconv.ParseInt(parts[0], 36, 64)
	if err != nil || ts < 0 {
		return false
	}

	expected := s.makeToken(user, ts)
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return false
	}

	age := s.secondsSinceEpoch(s.now()) - ts
	return age <= int64(s.timeout/time.Second)
}

func (s *Signer) makeToken(user *model.User, ts int64) string {
	tsB36 := strconv.FormatInt(ts, 36)

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(hashValue(user) + strconv.FormatInt(ts, 10)))
	full := hex.EncodeToString(mac.Sum(nil))

	// 1文字おきに間引いてURLを短くする
	var b strings.Builder
	for i := 0; i < len(full); i += 2 {
		b.WriteByte(full[i])
	}
	return tsB36 + "-" + b.String()
}

// hashValue はトークンに束縛するユーザー状態を連結する。
func hashValue(user *model.User) string {
	tier := ""
	if user.SubscriptionTier != nil {
		tier = strconv.Itoa(*user.SubscriptionTier)
	}
	return fmt.Sprintf("%d%d%s%s%s",
		user.ID,
		user.DownloadResetCounter,
		tier,
		user.UUID.String(),
		user.SubscriptionStatus,
	)
}

func (s *Signer) secondsSinceEpoch(t time.Time) int64 {
	return int64(t.Sub(epoch) / time.Second)
}

// EncodeUID はメールアドレスをURLセーフなbase64（パディングなし）に変換する。
func EncodeUID(email string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(email))
}

// DecodeUID はEncodeUIDの逆変換を行う。末尾のパディングは許容する。
func DecodeUID(uidb64 string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(uidb64, "="))
	if err != nil {
		return "", fmt.Errorf("uidb64のデコードに失敗しました: %w", err)
	}
	return string(b), nil
}
