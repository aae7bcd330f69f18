package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralLimit int           // API全般の許容リクエスト数（Windowあたり）
	LoginLimit   int           // ログイン開始・コールバックの許容リクエスト数（Windowあたり）
	Window       time.Duration // 集計ウィンドウ
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min、ログイン 20 req/min/IP
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralLimit: 120,
		LoginLimit:   20,
		Window:       time.Minute,
	}
}

// RateLimiter はキーごとのレート制限ミドルウェアを提供する。
// カウンタの保持はLimiterStoreに委譲する。
type RateLimiter struct {
	config RateLimiterConfig
	store  LimiterStore
}

// NewRateLimiter は新しいRateLimiterを生成する。
func NewRateLimiter(config RateLimiterConfig, store LimiterStore) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &RateLimiter{config: config, store: store}
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証済みの場合はユーザーID、それ以外はクライアントIPごとに制限する。
// 認証ゲートより後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware("general", rl.config.GeneralLimit, func(r *http.Request) string {
		if userID, err := UserIDFromContext(r.Context()); err == nil {
			return "user:" + userID
		}
		return "ip:" + clientIP(r)
	})
}

// LoginMiddleware はログインフロー用のレート制限ミドルウェアを返す。
// 認証前のためクライアントIPごとに制限する。
func (rl *RateLimiter) LoginMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware("login", rl.config.LoginLimit, func(r *http.Request) string {
		return "ip:" + clientIP(r)
	})
}

func (rl *RateLimiter) middleware(limitType string, limit int, keyFn func(r *http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)
			allowed, retryAfter, err := rl.store.Allow(r.Context(), limitType+":"+key, limit, rl.config.Window)
			if err != nil {
				// ストア障害時は制限せずに通す
				slog.Error("rate limit store failed",
					slog.String("limit_type", limitType),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				writeRateLimitResponse(w, retryAfter)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", limitType),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP はリクエスト元のIPアドレスを返す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには再試行可能になるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	})
}
