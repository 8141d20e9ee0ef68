package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/gambit/internal/auth"
	"github.com/hitoshi/gambit/internal/calendar"
	"github.com/hitoshi/gambit/internal/chesscom"
	"github.com/hitoshi/gambit/internal/config"
	"github.com/hitoshi/gambit/internal/database"
	"github.com/hitoshi/gambit/internal/gamefeed"
	"github.com/hitoshi/gambit/internal/gcal"
	"github.com/hitoshi/gambit/internal/handler"
	"github.com/hitoshi/gambit/internal/logger"
	"github.com/hitoshi/gambit/internal/metrics"
	"github.com/hitoshi/gambit/internal/middleware"
	"github.com/hitoshi/gambit/internal/repository"
	"github.com/hitoshi/gambit/internal/security"
	"github.com/hitoshi/gambit/internal/subscription"
	"github.com/hitoshi/gambit/internal/user"
	"github.com/hitoshi/gambit/internal/worker/calsync"
)

const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envがあれば読み込む（既存の環境変数が優先）
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、到達できることを確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newMetrics はプロセス単位のレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newChessCom はSSRF対策済みのHTTPクライアントでchess.comクライアントとアグリゲータを構築する。
func newChessCom(cfg *config.Config, collector metrics.MetricsCollector, log *slog.Logger) (*chesscom.Client, *chesscom.Aggregator, error) {
	if err := security.ValidateURL(cfg.ChessComBaseURL); err != nil {
		return nil, nil, fmt.Errorf("invalid CHESSCOM_BASE_URL: %w", err)
	}

	client, err := chesscom.NewClient(
		security.NewSafeClient(cfg.ChessComTimeout),
		chesscom.ClientConfig{
			BaseURL:      cfg.ChessComBaseURL,
			UserAgent:    cfg.ChessComUserAgent,
			MaxBodyBytes: cfg.ChessComMaxBody,
		},
		collector, log,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chess.com client: %w", err)
	}
	return client, chesscom.NewAggregator(client, collector, log), nil
}

func newOAuthProvider(ctx context.Context, cfg *config.Config) (*auth.GoogleOAuthProvider, error) {
	provider, err := auth.NewGoogleOAuthProvider(ctx, auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		IssuerURL:    cfg.GoogleIssuerURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize google oauth: %w", err)
	}
	return provider, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()
	log := slog.Default()

	// 1. 署名鍵（欠落は起動時の致命的エラー）
	signer, err := auth.NewSigner(cfg.SessionSecret)
	if err != nil {
		return fmt.Errorf("invalid session secret: %w", err)
	}

	// 2. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	subRepo := repository.NewPostgresSubscriptionRepo(db)

	// 4. 外部サービス
	reg, collector := newMetrics()
	chessClient, aggregator, err := newChessCom(cfg, collector, log)
	if err != nil {
		return err
	}
	oauthProvider, err := newOAuthProvider(ctx, cfg)
	if err != nil {
		return err
	}

	// 5. ドメインサービスの初期化
	authService := auth.NewService(oauthProvider, userRepo, sessionRepo, signer, collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	userService := user.NewService(userRepo, chessClient)
	subService := subscription.NewService(subRepo, chessClient)
	feedService := gamefeed.NewService(aggregator, calendar.NewEncoder(), collector, log)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSubscribe))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionValidator:  authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CalendarRateLimit: cfg.RateLimitCalendar,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: log,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:         handler.NewUserServiceAdapter(userService),
		SubscriptionService: handler.NewSubscriptionServiceAdapter(subService),
		GameFeedService:     feedService,

		MetricsHandler: metrics.Handler(reg),
	})

	// 7. HTTPサーバーの起動
	// カレンダー出力は全アーカイブの取得を待つため書き込みタイムアウトを長めにとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、カレンダー同期スケジューラを起動する。
// /health と /metrics は同じポートで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := slog.Default()

	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	subRepo := repository.NewPostgresSubscriptionRepo(db)
	calRepo := repository.NewPostgresUserCalendarRepo(db)

	// 3. 外部サービス
	reg, collector := newMetrics()
	_, aggregator, err := newChessCom(cfg, collector, log)
	if err != nil {
		return err
	}
	oauthProvider, err := newOAuthProvider(ctx, cfg)
	if err != nil {
		return err
	}

	// 4. 同期処理の組み立て。Calendar APIクライアントはユーザーのリフレッシュトークンごとに生成する
	newCalendarAPI := func(ctx context.Context, refreshToken string) calsync.CalendarAPI {
		return gcal.NewClient(oauthProvider.HTTPClient(ctx, refreshToken), gcal.DefaultBaseURL, log)
	}
	syncer := calsync.NewSyncer(calRepo, subRepo, aggregator, newCalendarAPI, collector, log)
	scheduler := calsync.NewScheduler(userRepo, syncer, collector, log, cfg.SyncMaxConcurrent)

	// 5. ヘルスチェックとメトリクス
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler(reg))
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("worker metrics server failed", slog.String("error", err.Error()))
		}
	}()
	defer server.Close()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			log.Info("shutting down worker...")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SyncInterval)

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できないURLは丸ごと伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
