package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/teamgate/internal/metrics"
	"github.com/hitoshi/teamgate/internal/middleware"
	"github.com/hitoshi/teamgate/internal/model"
	"github.com/hitoshi/teamgate/internal/session"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CookieCodec       *session.CookieCodec
	SessionStore      *session.Store
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// メトリクス
	Collector *metrics.Collector
	Gatherer  prometheus.Gatherer

	// 認証
	AuthCodeService AuthCodeServiceInterface
	Reconciler      ReconcilerInterface
	DevCodeLookup   DevCodeLookup // devモード以外はnil
	AuthConfig      AuthHandlerConfig

	// ダッシュボード
	AccountService AccountServiceInterface

	// 管理者
	UserService UserServiceInterface

	// ルートゲートのユーザー生存確認
	UserFinder middleware.UserFinder

	// 課金
	BillingService BillingServiceInterface

	// ヘルスチェック
	HealthCheck func() error
}

// NewRouter は全ルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → [Session → Metrics → Logging → RateLimit(General)]
//
// /health・/metrics・/webhooks/billingはセッション管理の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// 型付きnilがインターフェースのnil判定をすり抜けないようにする
	var authMetrics AuthMetrics
	var sessionMetrics middleware.SessionMetrics
	if deps.Collector != nil {
		authMetrics = deps.Collector
		sessionMetrics = deps.Collector
	}

	authHandler := NewAuthHandler(deps.AuthCodeService, deps.Reconciler, deps.DevCodeLookup, authMetrics, deps.AuthConfig)
	accountHandler := NewAccountHandler(deps.AccountService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig.BaseURL)
	adminHandler := NewAdminHandler(deps.UserService)
	billingHandler := NewBillingHandler(deps.BillingService)

	// --- セッション管理の外のルート ---

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// StripeはCookieを送らないのでWebhookはセッション管理を通さない
	r.Post("/webhooks/billing", billingHandler.Webhook)

	// --- セッション管理下のルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.CookieCodec, deps.SessionStore, sessionMetrics))
		r.Use(middleware.NewLoggingMiddleware(slog.Default()))
		if deps.Collector != nil {
			r.Use(middleware.NewMetricsMiddleware(deps.Collector))
		}
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 認証フロー
		r.Get("/authenticate", authHandler.Begin)
		r.With(deps.RateLimiter.CodeRequestMiddleware()).Post("/authenticate", authHandler.RequestCode)
		r.With(deps.RateLimiter.CodeRequestMiddleware()).Post("/authenticate/resend", authHandler.ResendCode)
		r.Get("/callback", authHandler.Callback)
		r.Post("/signout", authHandler.Signout)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/me", authHandler.Me)
			if deps.DevCodeLookup != nil {
				r.Get("/dev/code", authHandler.DevCode)
			}
		})

		// ダッシュボード（userロール）
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(middleware.NewRouteGate(model.UserTypeUser, deps.UserFinder))

			r.Get("/account", accountHandler.GetAccount)
			r.Post("/withdraw", userHandler.Withdraw)
			r.Route("/members", func(r chi.Router) {
				r.Get("/", accountHandler.ListMembers)
				r.Post("/", accountHandler.InviteMember)
				r.Patch("/{id}", accountHandler.UpdateMemberRole)
			})
		})

		// 管理者（adminロール）
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewRouteGate(model.UserTypeAdmin, deps.UserFinder))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", adminHandler.ListUsers)
				r.Delete("/{id}", adminHandler.WithdrawUser)
			})
		})
	})

	return r
}
