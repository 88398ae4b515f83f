package segment

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hitoshi/rentfree/internal/model"
)

// State はセグメント解決の結果状態。
type State int

const (
	// StateMatched は1つ以上のセグメントに一致した。
	StateMatched State = iota
	// StateNoMatch はルールはあるがどれにも一致しなかった。
	StateNoMatch
	// StateNoRules はルールが1件も設定されていない。
	StateNoRules
	// StateLookupFailed はルールの取得に失敗した。
	StateLookupFailed
)

// String はログ出力用の状態名を返す。
func (s State) String() string {
	switch s {
	case StateMatched:
		return "matched"
	case StateNoMatch:
		return "no_match"
	case StateNoRules:
		return "no_rules"
	case StateLookupFailed:
		return "lookup_failed"
	default:
		return "unknown"
	}
}

// IDSet はint64 IDの集合。
type IDSet map[int64]struct{}

// Add はIDを追加する。
func (s IDSet) Add(id int64) { s[id] = struct{}{} }

// Has はIDが含まれるかを返す。
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Sorted は昇順に並べたIDのスライスを返す。
func (s IDSet) Sorted() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Resolve はすべてのルールを1回ずつ評価し、一致したセグメントIDの和集合を返す。
// 最初の一致で打ち切らない。ユーザーは複数セグメントに同時に属しうる。
func Resolve(rules []model.TierRule, user *model.User) IDSet {
	matched := IDSet{}
	for _, rule := range rules {
		if Evaluate(rule, user) {
			matched.Add(rule.SegmentID)
		}
	}
	return matched
}

// Resolution はリクエスト単位のセグメント解決結果。
type Resolution struct {
	SegmentIDs IDSet
	State      State
	Err        error
}

// Matched は1つ以上のセグメントに一致したかを返す。
func (r Resolution) Matched() bool {
	return r.State == StateMatched
}

// RuleSource は階層ルールの取得元。
type RuleSource interface {
	// ListTierRules は「以上」「一致」の両種別のルールをすべて返す。
	ListTierRules(ctx context.Context) ([]model.TierRule, error)
}

// Resolver はルール取得とセグメント解決をまとめる。
type Resolver struct {
	rules  RuleSource
	logger *slog.Logger
}

// NewResolver はResolverを生成する。
func NewResolver(rules RuleSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{rules: rules, logger: logger}
}

// Resolve はユーザーが属するセグメントを解決する。
// 取得失敗とルール0件は別の状態として返すが、どちらも一致なしとして扱われる。
func (r *Resolver) Resolve(ctx context.Context, user *model.User) Resolution {
	rules, err := r.rules.ListTierRules(ctx)
	if err != nil {
		r.logger.Warn("階層ルールの取得に失敗したため一致なしとして扱います",
			slog.String("state", StateLookupFailed.String()),
			slog.String("error", err.Error()),
		)
		return Resolution{SegmentIDs: IDSet{}, State: StateLookupFailed, Err: err}
	}

	if len(rules) == 0 {
		r.logger.Warn("階層ルールが設定されていません",
			slog.String("state", StateNoRules.String()),
		)
		return Resolution{SegmentIDs: IDSet{}, State: StateNoRules}
	}

	ids := Resolve(rules, user)
	if len(ids) == 0 {
		return Resolution{SegmentIDs: ids, State: StateNoMatch}
	}
	return Resolution{SegmentIDs: ids, State: StateMatched}
}
