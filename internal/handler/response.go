package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/gambit/internal/middleware"
	"github.com/hitoshi/gambit/internal/model"
)

// レスポンスに載せるエラーメッセージ
const (
	msgAuthFailed      = "Authentication failed"
	msgInvalidState    = "Invalid state parameter"
	msgMissingAuthCode = "Missing authorization code"
)

// emptyResponse は成功時に返す空のJSONオブジェクト。
type emptyResponse struct{}

// isValidationError はユーザー入力に起因するエラーかどうかを返す。
// 検証エラーは200とerrorフィールドで返す。
func isValidationError(err error) (*model.APIError, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Category == "validation" {
		return apiErr, true
	}
	return nil, false
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := isValidationError(err); ok {
		middleware.WriteErrorResponse(w, http.StatusOK, apiErr)
		return
	}

	if errors.Is(err, model.ErrInvalidSession) {
		middleware.WriteUnauthorized(w)
		return
	}

	var te *model.TransportError
	if errors.As(err, &te) {
		apiErr := model.NewUpstreamFailedError()
		slog.Error("upstream request failed",
			slog.String("code", apiErr.Code),
			slog.String("path", r.URL.Path),
			slog.String("username", te.Username),
			slog.String("url", te.URL),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, apiErr)
		return
	}

	var encErr *model.EncodingError
	if errors.As(err, &encErr) {
		apiErr := model.NewEncodingFailedError()
		slog.Error("calendar encoding failed",
			slog.String("code", apiErr.Code),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("code", model.ErrCodeInternal),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}
