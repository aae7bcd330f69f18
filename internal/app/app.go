package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/tinytasks/internal/auth"
	"github.com/hitoshi/tinytasks/internal/config"
	"github.com/hitoshi/tinytasks/internal/database"
	"github.com/hitoshi/tinytasks/internal/handler"
	"github.com/hitoshi/tinytasks/internal/logger"
	"github.com/hitoshi/tinytasks/internal/metrics"
	"github.com/hitoshi/tinytasks/internal/middleware"
	"github.com/hitoshi/tinytasks/internal/repository"
	"github.com/hitoshi/tinytasks/internal/security"
	"github.com/hitoshi/tinytasks/internal/task"
	"github.com/hitoshi/tinytasks/internal/tracing"
	"github.com/hitoshi/tinytasks/internal/user"
	"github.com/hitoshi/tinytasks/internal/worker/cleanup"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Version はビルド時に -ldflags "-X github.com/hitoshi/tinytasks/internal/app.Version=..." で上書きする。
var Version = "dev"

const serviceName = "tinytasks"

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envがあれば読み込む（既存の環境変数は上書きしない）
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

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

	userID, err := userIDArg(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", Version),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(cfg, userID)
	case CommandDeactivateUser:
		return runSetUserState(cfg, userID, false)
	case CommandActivateUser:
		return runSetUserState(cfg, userID, true)
	case CommandRevokeTokens:
		return runRevokeTokens(cfg, userID)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newLimiterStore はREDIS_URLが設定されていればRedis、なければメモリのストアを返す。
// 返すcloseはストアの後始末を行う。
func newLimiterStore(ctx context.Context, cfg *config.Config) (middleware.LimiterStore, func(), error) {
	if cfg.RedisURL == "" {
		store := middleware.NewMemoryLimiterStore(time.Minute)
		return store, store.Stop, nil
	}

	client, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("rate limit counters are shared via redis")
	return middleware.NewRedisLimiterStore(client, ""), func() { client.Close() }, nil
}

// buildRouter は全依存関係をワイヤリングしたAPIルーターを返す。
func buildRouter(cfg *config.Config, db *sqlx.DB, collector *metrics.Collector, store middleware.LimiterStore) http.Handler {
	// 1. リポジトリの初期化
	userRepo := repository.NewSQLUserRepo(db)
	credRepo := repository.NewSQLCredentialRepo(db)
	taskRepo := repository.NewSQLTaskRepo(db)

	// 2. セキュリティの初期化
	sanitizer := security.NewTextSanitizer()

	// 3. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:        cfg.GoogleClientID,
		ClientSecret:    cfg.GoogleClientSecret,
		RedirectURL:     cfg.GoogleRedirectURL,
		AuthURL:         cfg.GoogleAuthURL,
		TokenURL:        cfg.GoogleTokenURL,
		UserInfoURL:     cfg.GoogleUserInfoURL,
		HTTPClient:      security.NewSafeClient(cfg.ProviderTimeout),
		BreakerFailures: cfg.ProviderBreakerFailures,
		BreakerTimeout:  cfg.ProviderBreakerTimeout,
	})
	tokenService := auth.NewTokenService(userRepo, credRepo, collector)
	authService := auth.NewService(oauthProvider, tokenService, collector)
	taskService := task.NewService(taskRepo, sanitizer)
	userService := user.NewService(userRepo, sanitizer)

	// 4. ルーターの構築（設定値はreq/min）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralLimit = cfg.RateLimitGeneral
	rateLimiterCfg.LoginLimit = cfg.RateLimitLogin

	return handler.NewRouter(&handler.RouterDeps{
		TokenValidator:    tokenService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg, store),
		Logger:            slog.Default(),
		HTTPMetrics:       collector.Middleware(),

		HealthChecker: db,
		Version:       Version,

		AuthService:  authService,
		TokenService: tokenService,
		TaskService:  taskService,
		UserService:  userService,
	})
}

// newMetricsRegistry はGoランタイムとプロセスのメトリクスを含むレジストリを返す。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、APIサーバーとメトリクスサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	if cfg.AutoMigrate {
		if err := runMigrate(cfg); err != nil {
			return err
		}
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. トレース
	shutdownTracing, err := tracing.Setup(ctx, cfg.OTelEndpoint, serviceName, Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 3. メトリクス
	reg := newMetricsRegistry()
	collector := metrics.NewCollector(reg)

	// 4. レート制限ストア
	store, closeStore, err := newLimiterStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      buildRouter(cfg, db, collector, store),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	errCh := make(chan error, 2)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()
	go func() {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var serveErr error
	select {
	case <-stop:
		slog.Info("shutting down API server...")
	case serveErr = <-errCh:
		slog.Error("server stopped unexpectedly", slog.String("error", serveErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if serveErr != nil {
		return serveErr
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

// runCleanup はタスクを一括削除する。userIDが空の場合は全ユーザーが対象。
func runCleanup(cfg *config.Config, userID string) error {
	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = cleanup.NewCleanupJob(db, slog.Default()).Run(ctx, userID)
	return err
}

// runSetUserState はユーザーを有効化または無効化する。
func runSetUserState(cfg *config.Config, userID string, active bool) error {
	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := user.NewService(repository.NewSQLUserRepo(db), security.NewTextSanitizer())
	if active {
		err = svc.Activate(ctx, userID)
	} else {
		err = svc.Deactivate(ctx, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to change state of user %s: %w", userID, err)
	}
	return nil
}

// runRevokeTokens はユーザーの有効なトークンを全て失効させる。
func runRevokeTokens(cfg *config.Config, userID string) error {
	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tokens := auth.NewTokenService(repository.NewSQLUserRepo(db), repository.NewSQLCredentialRepo(db), nil)
	n, err := tokens.RevokeAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke tokens of user %s: %w", userID, err)
	}

	slog.Info("tokens revoked", slog.String("user_id", userID), slog.Int64("revoked", n))
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
