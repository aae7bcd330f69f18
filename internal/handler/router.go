package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tinytasks/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenValidator    middleware.TokenValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	// HTTPMetrics はリクエスト数と処理時間を記録するミドルウェア。nilの場合は記録しない。
	HTTPMetrics func(next http.Handler) http.Handler

	// ヘルスチェック
	HealthChecker HealthChecker
	Version       string

	// 認証
	AuthService  AuthServiceInterface
	TokenService TokenServiceInterface

	// タスク
	TaskService TaskServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → HTTPMetrics → CORS → Logging → AuthGate → RateLimit(General)
//
// AuthGateはルート直下で全ルートに適用し、許可リストのルートだけを素通しする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics)
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewAuthGate(deps.TokenValidator, middleware.DefaultPublicRoutes()))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	statusHandler := NewStatusHandler(deps.HealthChecker, deps.Version)
	authHandler := NewAuthHandler(deps.AuthService, deps.TokenService)
	taskHandler := NewTaskHandler(deps.TaskService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 許可リストのルート ---
	r.Get("/", statusHandler.Root)
	r.Get("/health", statusHandler.Health)

	r.Route("/auth", func(r chi.Router) {
		// OAuthフロー（ログイン専用レート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.LoginMiddleware())
			r.Get("/google", authHandler.GoogleLogin)
			r.Get("/google/callback", authHandler.GoogleCallback)
		})
		r.Get("/oauth-guide", authHandler.OAuthGuide)

		// トークン管理
		r.Get("/me", authHandler.Me)
		r.Get("/tokens", authHandler.ListTokens)
		r.Post("/revoke", authHandler.Revoke)
		r.Post("/revoke-all", authHandler.RevokeAll)
	})

	// --- 認証が必要なルート ---

	// タスク管理
	r.Route("/tasks", func(r chi.Router) {
		// 許可リスト
		r.Get("/status", statusHandler.TaskStatus)

		r.Get("/", taskHandler.List)
		r.Post("/", taskHandler.Create)
		r.Get("/stats", taskHandler.Stats)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", taskHandler.Get)
			r.Patch("/", taskHandler.Update)
			r.Delete("/", taskHandler.Delete)
			r.Patch("/toggle", taskHandler.Toggle)
		})
	})

	// ユーザー管理
	r.Route("/users/profile", func(r chi.Router) {
		r.Get("/", userHandler.GetProfile)
		r.Patch("/", userHandler.UpdateProfile)
		r.Delete("/", userHandler.Withdraw)
	})

	return r
}
