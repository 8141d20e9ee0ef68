package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/gambit/internal/middleware"
	"github.com/hitoshi/gambit/internal/model"
)

type mockUserService struct {
	getProfileFn       func(ctx context.Context, userID string) (*meResponse, error)
	setChessUsernameFn func(ctx context.Context, userID, username string) (*meResponse, error)
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*meResponse, error) {
	return m.getProfileFn(ctx, userID)
}

func (m *mockUserService) SetChessUsername(ctx context.Context, userID, username string) (*meResponse, error) {
	return m.setChessUsernameFn(ctx, userID, username)
}

// withUser はセッションミドルウェアを通過した状態のリクエストを作る。
func withUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	msg, _ := body["error"].(string)
	return msg
}

func TestUserHandler_Me_ReturnsProfile(t *testing.T) {
	svc := &mockUserService{
		getProfileFn: func(ctx context.Context, userID string) (*meResponse, error) {
			return &meResponse{ID: userID, ChessUsername: "Hikaru", Email: "a@example.com"}, nil
		},
	}
	h := NewUserHandler(svc)

	w := httptest.NewRecorder()
	h.Me(w, withUser(httptest.NewRequest(http.MethodGet, "/me", nil), "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	want := map[string]string{"id": "user-1", "chessUsername": "Hikaru", "email": "a@example.com"}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %q, want %q", k, body[k], v)
		}
	}
}

func TestUserHandler_Me_Unauthorized(t *testing.T) {
	t.Run("no user in context", func(t *testing.T) {
		h := NewUserHandler(&mockUserService{})
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("user deleted", func(t *testing.T) {
		h := NewUserHandler(&mockUserService{
			getProfileFn: func(ctx context.Context, userID string) (*meResponse, error) {
				return nil, model.ErrInvalidSession
			},
		})
		w := httptest.NewRecorder()
		h.Me(w, withUser(httptest.NewRequest(http.MethodGet, "/me", nil), "user-1"))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if got := decodeErrorBody(t, w); got != "Unauthorized" {
			t.Errorf("error = %q", got)
		}
	})
}

func TestUserHandler_UpdateMe(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantError  string
	}{
		{"success", `{"chessUsername":"Hikaru"}`, nil, http.StatusOK, ""},
		{"unknown user", `{"chessUsername":"nobody"}`, model.ErrChessUserNotFound, http.StatusOK, "User not found"},
		{"blank", `{"chessUsername":" "}`, model.ErrUsernameRequired, http.StatusOK, "Username required"},
		{"malformed body", `{`, nil, http.StatusOK, "Invalid request body"},
		{"upstream failure", `{"chessUsername":"Hikaru"}`, &model.TransportError{Username: "Hikaru", StatusCode: 503}, http.StatusBadGateway, model.NewUpstreamFailedError().Message},
		{"repository failure", `{"chessUsername":"Hikaru"}`, errors.New("db down"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUsername string
			h := NewUserHandler(&mockUserService{
				setChessUsernameFn: func(ctx context.Context, userID, username string) (*meResponse, error) {
					gotUsername = username
					if tt.svcErr != nil {
						return nil, tt.svcErr
					}
					return &meResponse{ID: userID, ChessUsername: username}, nil
				},
			})

			req := withUser(httptest.NewRequest(http.MethodPut, "/me", strings.NewReader(tt.body)), "user-1")
			w := httptest.NewRecorder()
			h.UpdateMe(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantError == "" {
				var body meResponse
				json.NewDecoder(w.Body).Decode(&body)
				if body.ChessUsername != "Hikaru" || gotUsername != "Hikaru" {
					t.Errorf("chessUsername = %q (service got %q)", body.ChessUsername, gotUsername)
				}
				return
			}
			if got := decodeErrorBody(t, w); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}
