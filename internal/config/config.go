package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,required,notEmpty"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,required,notEmpty"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL,required,notEmpty"`
	// 空の場合はGoogleの本番エンドポイントを使う
	GoogleAuthURL     string `env:"GOOGLE_AUTH_URL"`
	GoogleTokenURL    string `env:"GOOGLE_TOKEN_URL"`
	GoogleUserInfoURL string `env:"GOOGLE_USERINFO_URL"`

	// Provider
	ProviderTimeout         time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"15s"`
	ProviderBreakerFailures uint32        `env:"PROVIDER_BREAKER_FAILURES" envDefault:"5"`
	ProviderBreakerTimeout  time.Duration `env:"PROVIDER_BREAKER_TIMEOUT" envDefault:"30s"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int    `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitLogin   int    `env:"RATE_LIMIT_LOGIN" envDefault:"20"`
	RedisURL         string `env:"REDIS_URL"`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Observability
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.ProviderTimeout <= 0 {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT must be positive: %s", cfg.ProviderTimeout)
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDotEnv は.envファイルが存在すれば環境変数に読み込む。
// 既に設定されている環境変数は上書きしない。ファイルがない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ParseLogLevel はLOG_LEVELの値をslog.Levelに変換する。
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}
