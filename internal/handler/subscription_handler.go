package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/gambit/internal/middleware"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// List は購読一覧を返す。
	List(ctx context.Context, userID string) ([]followedResponse, error)
	// Subscribe はchess.com上の存在を確認したうえで購読を追加する。
	Subscribe(ctx context.Context, userID, username string) error
	// Unsubscribe は購読を解除する。
	Unsubscribe(ctx context.Context, userID, username string) error
}

// SubscriptionHandler は購読管理のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
	}
}

// followedResponse は購読中ユーザー1件のAPIレスポンス。
type followedResponse struct {
	Name  string    `json:"name"`
	Since time.Time `json:"since"`
}

type subscriptionListResponse struct {
	Users []followedResponse `json:"users"`
}

// subscriptionRequest はPOST/DELETE /subscriptions のリクエストボディ。
type subscriptionRequest struct {
	Username string `json:"username"`
}

// ListSubscriptions は購読一覧を取得する。
// GET /subscriptions
func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	users, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []followedResponse{}
	}

	middleware.WriteJSON(w, http.StatusOK, subscriptionListResponse{Users: users})
}

// Subscribe は購読を追加する。
// POST /subscriptions
//
// 空のユーザー名とchess.comに存在しないユーザーは200でerrorフィールドを返す。
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	var req subscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.Subscribe(r.Context(), userID, req.Username); err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, emptyResponse{})
}

// Unsubscribe は購読を解除する。購読していない場合も成功とする。
// DELETE /subscriptions
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	var req subscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.Unsubscribe(r.Context(), userID, req.Username); err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, emptyResponse{})
}
