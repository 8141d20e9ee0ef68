// Package logger はアプリケーション共通の構造化ログ出力を設定する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redactedKeys はログに値を出さない属性キー。
// セッショントークンやOAuthトークンが誤ってログに渡されても伏せる。
var redactedKeys = map[string]bool{
	"token":         true,
	"session_id":    true,
	"access_token":  true,
	"refresh_token": true,
	"secret":        true,
}

const redacted = "[REDACTED]"

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。
// 未設定・不明な値はINFOとして扱う。
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

// Setup は指定レベル以上を出力するJSON構造化ロガーを生成する。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ロガーをグローバルロガーとして設定する。
// レベルは環境変数LOG_LEVELから決まる。wがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, ParseLevel(os.Getenv("LOG_LEVEL"))))
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[a.Key] {
		return slog.String(a.Key, redacted)
	}
	return a
}
