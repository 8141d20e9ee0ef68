package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLimiterConfig(generalBurst, subscribeBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     0.001,
		GeneralBurst:    generalBurst,
		SubscribeRate:   0.001,
		SubscribeBurst:  subscribeBurst,
		CleanupInterval: time.Minute,
	}
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimiter_General_LimitsPerUser(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(2, 10))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if got := decodeError(t, w); got != "Too many requests" {
		t.Errorf("error = %q", got)
	}

	// 他のユーザーには影響しない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-2"))
	if w.Code != http.StatusOK {
		t.Errorf("user-2 status = %d, want 200", w.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount() = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_SubscribeIndependentOfGeneral(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(10, 1))
	defer rl.Stop()
	subscribe := rl.SubscribeMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	subscribe.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first subscribe status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	subscribe.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second subscribe status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
	if rl.SubscribeLimiterCount() != 1 {
		t.Errorf("SubscribeLimiterCount() = %d, want 1", rl.SubscribeLimiterCount())
	}
}

func TestRateLimiter_RequiresUserID(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(10, 10))
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(10, 10))
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-1"))
	rl.SubscribeMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-1"))

	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("recent entries must survive cleanup")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 || rl.SubscribeLimiterCount() != 0 {
		t.Errorf("idle entries should be evicted, got %d/%d", rl.GeneralLimiterCount(), rl.SubscribeLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	rl.Stop()
	rl.Stop()
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 10)
	if cfg.GeneralRate != 2 || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.SubscribeBurst != 10 {
		t.Errorf("subscribe burst = %d", cfg.SubscribeBurst)
	}
}

func TestIPRateLimit_LimitsPerClientIP(t *testing.T) {
	handler := NewIPRateLimit(2)(okHandler())

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/games/hikaru/calendar.ics", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if send("203.0.113.1") != http.StatusOK || send("203.0.113.1") != http.StatusOK {
		t.Fatal("requests within the limit should pass")
	}
	if got := send("203.0.113.1"); got != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", got)
	}
	if got := send("203.0.113.2"); got != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", got)
	}
}
