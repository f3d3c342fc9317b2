package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/teamgate/internal/account"
	"github.com/hitoshi/teamgate/internal/authcode"
	"github.com/hitoshi/teamgate/internal/billing"
	"github.com/hitoshi/teamgate/internal/config"
	"github.com/hitoshi/teamgate/internal/database"
	"github.com/hitoshi/teamgate/internal/handler"
	"github.com/hitoshi/teamgate/internal/identity"
	"github.com/hitoshi/teamgate/internal/logger"
	"github.com/hitoshi/teamgate/internal/metrics"
	"github.com/hitoshi/teamgate/internal/middleware"
	"github.com/hitoshi/teamgate/internal/repository"
	"github.com/hitoshi/teamgate/internal/session"
	"github.com/hitoshi/teamgate/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
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
	cmd := ParseCommand(args)

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
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DBとKVストアへの接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. KVストア接続
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to kv store: %w", err)
	}

	slog.Info("kv store connection established")

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	accountRepo := repository.NewPostgresAccountRepo(db)
	memberRepo := repository.NewPostgresMemberRepo(db)
	reconcileRepo := repository.NewPostgresReconcileRepo(db)

	// 4. セッション基盤の初期化
	cookieCodec := session.NewCookieCodec(cfg.SessionSecret, session.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
		MaxAge: cfg.SessionTTL,
	})
	sessionStore := session.NewStore(redisClient, cfg.SessionTTL)

	// 5. 認証コードフローの初期化
	codeStore := authcode.NewCodeStore(redisClient, cfg.CodeTTL, cfg.CodeMaxAttempts)

	var dispatcher authcode.Dispatcher
	var devLookup handler.DevCodeLookup
	if cfg.DevMode {
		// devモードではメールを送らずKV経由でコードを参照できるようにする
		kvDispatcher := authcode.NewDevKVDispatcher(redisClient, cfg.CodeTTL)
		dispatcher = kvDispatcher
		devLookup = kvDispatcher
		slog.Warn("dev mode enabled: auth codes are exposed via /auth/dev/code")
	} else {
		dispatcher = authcode.NewMailDispatcher(authcode.MailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	}
	codeService := authcode.NewService(codeStore, dispatcher)

	// 6. ドメインサービスの初期化
	reconciler := identity.NewReconciler(reconcileRepo)
	accountService := account.NewService(accountRepo, memberRepo, userRepo, cfg.MaxAccountMembers)
	userService := user.NewService(userRepo)
	billingService := billing.NewService(accountRepo, cfg.StripeWebhookSecret)

	// 7. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 8. レート制限の初期化（configはreq/min単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.CodeReqRate = rate.Limit(float64(cfg.RateLimitCodeRequest) / 60.0)
	rateLimiterCfg.CodeReqBurst = cfg.RateLimitCodeRequest
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 9. ルーターの構築
	deps := &handler.RouterDeps{
		CookieCodec:       cookieCodec,
		SessionStore:      sessionStore,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		Collector: collector,
		Gatherer:  registry,

		AuthCodeService: codeService,
		Reconciler:      reconciler,
		DevCodeLookup:   devLookup,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieSecure: cfg.CookieSecure,
			ChallengeTTL: cfg.CodeTTL,
		},

		AccountService: accountService,
		UserService:    userService,
		UserFinder:     userRepo,
		BillingService: billingService,

		HealthCheck: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("kv store: %w", err)
			}
			return nil
		},
	}

	router := handler.NewRouter(deps)

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
