package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/gambit/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionValidator  middleware.SessionValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CalendarRateLimit int // req/min/IP
	CSRF              middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// 購読
	SubscriptionService SubscriptionServiceInterface

	// 対局フィード
	GameFeedService GameFeedServiceInterface

	// /metrics。nilの場合は公開しない
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS
//	  認証ルート:   Session → RateLimit(General) → CSRF
//	  公開フィード: RateLimit(IP)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	calHandler := NewCalendarHandler(deps.GameFeedService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
	})

	// 公開フィード。1リクエストがchess.comへのファンアウトを伴うためIP単位で制限する
	r.Route("/games/{username}", func(r chi.Router) {
		r.Use(middleware.NewIPRateLimit(deps.CalendarRateLimit))
		r.Get("/", calHandler.Games)
		r.Get("/calendar.ics", calHandler.Calendar)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/me", userHandler.Me)
		r.Put("/me", userHandler.UpdateMe)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", subHandler.ListSubscriptions)
			r.With(deps.RateLimiter.SubscribeMiddleware()).Post("/", subHandler.Subscribe)
			r.Delete("/", subHandler.Unsubscribe)
		})
	})

	return r
}
