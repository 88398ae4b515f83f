package probe

import "time"

// Result はプローブ結果の分類。メトリクスのラベルにも使う。
type Result string

const (
	// ResultOK はサイズを取得できた（200 + Content-Length）。
	ResultOK Result = "ok"
	// ResultStop は再試行しても取得できないステータス（404/410/401/403）。
	ResultStop Result = "stop"
	// ResultBackoff は時間をおいて再試行するステータス（429/5xx、Content-Lengthなし、その他）。
	ResultBackoff Result = "backoff"
	// ResultError は接続エラー。バックオフで再試行する。
	ResultError Result = "error"
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// stopRecheck は停止したメディアを再確認するまでの期間。
	// URLを編集して保存するとプローブ状態はリセットされる。
	stopRecheck = 30 * 24 * time.Hour
)

// ClassifyHTTPStatus はHTTPステータスコードをプローブ結果に分類する。
func ClassifyHTTPStatus(statusCode int) Result {
	switch {
	case statusCode == 200:
		return ResultOK
	case statusCode == 404 || statusCode == 410:
		return ResultStop
	case statusCode == 401 || statusCode == 403:
		return ResultStop
	default:
		// 429、5xx、その他
		return ResultBackoff
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// State はプローブ後に保存する状態。
type State struct {
	Size        int64
	ProbeErrors int
	NextProbeAt *time.Time
}

// NextState は結果からプローブ状態を計算する。
// prevErrorsはこれまでの連続失敗回数。
func NextState(result Result, size int64, prevErrors int, now time.Time) State {
	switch result {
	case ResultOK:
		return State{Size: size}
	case ResultStop:
		next := now.Add(stopRecheck)
		return State{ProbeErrors: prevErrors + 1, NextProbeAt: &next}
	default:
		next := now.Add(CalculateBackoff(prevErrors))
		return State{ProbeErrors: prevErrors + 1, NextProbeAt: &next}
	}
}
