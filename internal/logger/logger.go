package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// ログ出力形式
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupText はローカル開発向けにtintの色付きテキスト出力のslog.Loggerを生成する。
func SetupText(w io.Writer) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	})
	return slog.New(handler)
}

// New はformatに応じたslog.Loggerを返す。未知の形式はJSONとして扱う。
func New(w io.Writer, format string) *slog.Logger {
	if format == FormatText {
		return SetupText(w)
	}
	return Setup(w)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	SetupDefaultFormat(w, FormatJSON)
}

// SetupDefaultFormat は指定形式のロガーをグローバルロガーとして設定する。
func SetupDefaultFormat(w io.Writer, format string) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(New(w, format))
}
