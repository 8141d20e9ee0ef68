package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/gambit/internal/model"
)

// mockSessionValidator はSessionValidatorのテスト用モック。
type mockSessionValidator struct {
	validateFn func(ctx context.Context, token string) (string, error)
}

func (m *mockSessionValidator) ValidateSession(ctx context.Context, token string) (string, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, token)
	}
	return "", model.ErrInvalidSession
}

func validatorFor(token, userID string) *mockSessionValidator {
	return &mockSessionValidator{
		validateFn: func(_ context.Context, got string) (string, error) {
			if got == token {
				return userID, nil
			}
			return "", model.ErrInvalidSession
		},
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Error
}

func TestSessionMiddleware_ValidSession_InjectsUserID(t *testing.T) {
	mw := NewSessionMiddleware(validatorFor("valid-token", "user-123"))

	var captured string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "user-123" {
		t.Errorf("userID = %q, want %q", captured, "user-123")
	}
}

func TestSessionMiddleware_Unauthorized(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"empty cookie", &http.Cookie{Name: SessionCookieName, Value: ""}},
		{"invalid token", &http.Cookie{Name: SessionCookieName, Value: "forged"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewSessionMiddleware(validatorFor("valid-token", "user-123"))
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodPost, "/subscriptions", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if got := decodeError(t, w); got != "Unauthorized" {
				t.Errorf("error = %q, want %q", got, "Unauthorized")
			}
		})
	}
}

func TestSessionMiddleware_ValidatorFailure_Returns500(t *testing.T) {
	mw := NewSessionMiddleware(&mockSessionValidator{
		validateFn: func(context.Context, string) (string, error) {
			return "", errors.New("db down")
		},
	})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}

	ctx := ContextWithUserID(context.Background(), "user-1")
	got, err := UserIDFromContext(ctx)
	if err != nil || got != "user-1" {
		t.Errorf("UserIDFromContext() = %q, %v", got, err)
	}
}

func TestSessionToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := SessionToken(req); got != "" {
		t.Errorf("SessionToken() = %q, want empty", got)
	}
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "abc"})
	if got := SessionToken(req); got != "abc" {
		t.Errorf("SessionToken() = %q, want %q", got, "abc")
	}
}
