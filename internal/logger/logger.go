package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はInfoとする。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定し、そのロガーを返す。
// wがnilならos.Stdoutに出力する。設定の読み込み前に呼ぶためレベルはInfo固定。
func SetupDefault(w io.Writer) *slog.Logger {
	return SetupDefaultLevel(w, slog.LevelInfo)
}

// SetupDefaultLevel はレベルを指定してグローバルロガーを設定する。
func SetupDefaultLevel(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	l := Setup(w, level)
	slog.SetDefault(l)
	return l
}

// ForComponent はcomponent属性付きのロガーを返す。サブコマンドやワーカーの識別に使う。
func ForComponent(l *slog.Logger, component string) *slog.Logger {
	return l.With(slog.String("component", component))
}
