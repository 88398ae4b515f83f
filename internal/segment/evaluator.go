// Package segment は購読階層ルールによるユーザーのセグメント分類を提供する。
package segment

import "github.com/hitoshi/rentfree/internal/model"

// Evaluate はユーザーがルールに一致するかを判定する。
// 匿名ユーザー(nil)、階層未割り当て、非activeな購読はすべてfalse。
// 副作用はなく、panicもしない。
func Evaluate(rule model.TierRule, user *model.User) bool {
	if user == nil || user.SubscriptionTier == nil {
		return false
	}
	if user.SubscriptionStatus != model.StatusActive {
		return false
	}

	tier := *user.SubscriptionTier
	switch rule.Kind {
	case model.RuleAtLeastTier:
		return tier >= rule.ThresholdTier
	case model.RuleExactlyTier:
		return tier == rule.ThresholdTier
	default:
		return false
	}
}
