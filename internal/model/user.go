package model

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus は課金サービス側の購読ステータスをローカルに写したもの。
type SubscriptionStatus string

const (
	StatusNone       SubscriptionStatus = ""
	StatusActive     SubscriptionStatus = "active"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusUnpaid     SubscriptionStatus = "unpaid"
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusCanceled   SubscriptionStatus = "canceled"
)

// User はサイトの利用者を表す。
// SubscriptionTier と SubscriptionStatus は課金Webhookの同期でのみ更新される。
type User struct {
	ID        int64
	Email     string
	UserName  string
	FirstName string
	LastName  string

	// UUID は署名トークンに使う擬似識別子。管理者のリセットでローテーションされる。
	UUID uuid.UUID

	// SubscriptionTier はnilなら階層未割り当て。0は無料プラン。
	SubscriptionTier     *int
	SubscriptionStatus   SubscriptionStatus
	DownloadResetCounter int
	BillingCustomerID    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasActiveSubscription は購読ステータスがactiveかどうかを返す。
func (u *User) HasActiveSubscription() bool {
	return u != nil && u.SubscriptionStatus == StatusActive
}

// IsPremium はプレミアムフィードを受け取れる状態か（有料階層かつactive）を返す。
func (u *User) IsPremium() bool {
	return u.HasActiveSubscription() && u.SubscriptionTier != nil && *u.SubscriptionTier > 0
}
