package handler

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hitoshi/gambit/internal/middleware"
	"github.com/hitoshi/gambit/internal/model"
)

// maxRequestBody はJSONリクエストボディの上限（バイト）。
const maxRequestBody = 4 << 10

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// GetProfile はログインユーザーの情報を返す。
	GetProfile(ctx context.Context, userID string) (*meResponse, error)
	// SetChessUsername はログインユーザー自身のchess.comユーザー名を設定する。
	SetChessUsername(ctx context.Context, userID, username string) (*meResponse, error)
}

// UserHandler はログインユーザー情報のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// meResponse は /me のレスポンス。chessUsernameは未設定なら空文字列。
type meResponse struct {
	ID            string `json:"id"`
	ChessUsername string `json:"chessUsername"`
	Email         string `json:"email"`
}

type updateMeRequest struct {
	ChessUsername string `json:"chessUsername"`
}

// Me は現在のログインユーザー情報を返す。
// GET /me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	me, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, me)
}

// UpdateMe はchess.comユーザー名を設定する。
// PUT /me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	var req updateMeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	me, err := h.service.SetChessUsername(r.Context(), userID, req.ChessUsername)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, me)
}

// decodeBody はJSONボディを読み込む。解析できない場合は検証エラーとして応答し、falseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusOK, model.NewInvalidRequestError())
		return false
	}
	return true
}
