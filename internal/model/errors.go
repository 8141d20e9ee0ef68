package model

import (
	"errors"
	"fmt"
)

// APIError はユーザーに表示するエラーを表す。
// Messageはそのままレスポンスの error フィールドに載る。
type APIError struct {
	Code     string // エラーコード
	Message  string // ユーザー向けメッセージ
	Category string // カテゴリ: auth, validation, upstream, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUsernameRequired  = "USERNAME_REQUIRED"
	ErrCodeChessUserNotFound = "CHESS_USER_NOT_FOUND"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeUpstreamFailed    = "UPSTREAM_FAILED"
	ErrCodeEncodingFailed    = "ENCODING_FAILED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewUsernameRequiredError はユーザー名未指定エラーを生成する。
func NewUsernameRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameRequired,
		Message:  "Username required",
		Category: "validation",
	}
}

// NewChessUserNotFoundError はchess.com上にユーザーが存在しない場合のエラーを生成する。
func NewChessUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeChessUserNotFound,
		Message:  "User not found",
		Category: "validation",
	}
}

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Invalid request body",
		Category: "validation",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
	}
}

// NewUpstreamFailedError はchess.comとの通信に失敗した場合のエラーを生成する。
func NewUpstreamFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "Failed to reach chess.com",
		Category: "upstream",
	}
}

// NewEncodingFailedError はカレンダー文書を構築できなかった場合のエラーを生成する。
func NewEncodingFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeEncodingFailed,
		Message:  "Failed to build calendar",
		Category: "system",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
	}
}

// ユーザー向けメッセージを持つ定義済みエラー。errors.Isで比較できる。
var (
	ErrUsernameRequired  = NewUsernameRequiredError()
	ErrChessUserNotFound = NewChessUserNotFoundError()
)

// ErrInvalidSession はセッションが存在しない・期限切れ・ユーザー不在のいずれかであることを示す。
var ErrInvalidSession = errors.New("invalid session")

// TransportError は上流（chess.com）との通信失敗を表す。
// タイムアウト、5xx、不正なレスポンスボディを含む。呼び出し元の判断でリトライしてよい。
type TransportError struct {
	Username   string
	URL        string
	StatusCode int // HTTPレスポンスを受け取れなかった場合は0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream request for %q failed with status %d (%s)", e.Username, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("upstream request for %q failed (%s): %v", e.Username, e.URL, e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError はerrのチェーンにTransportErrorが含まれるかを返す。
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// EncodingError はカレンダー文書を構築できなかったことを表す。
type EncodingError struct {
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calendar encoding failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("calendar encoding failed: %s", e.Reason)
}

// Unwrap は原因となったエラーを返す。
func (e *EncodingError) Unwrap() error {
	return e.Err
}
