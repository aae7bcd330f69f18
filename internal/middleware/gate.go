package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/tinytasks/internal/model"
)

const bearerPrefix = "Bearer "

// ゲートが返すエラーメッセージ
const (
	msgTokenNotProvided = "Token not provided"
	msgInvalidToken     = "Invalid token"
)

// TokenValidator はアクセストークンの検証に必要なインターフェース。
// 未知・失効済み・所有者無効のトークンには(nil, nil)を返す。
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*model.User, error)
}

// PublicRoute は認証不要なパス。
// Prefixがtrueの場合、Path自身とPath配下のパス（"/"区切り）に一致する。
type PublicRoute struct {
	Path   string
	Prefix bool
}

// matches はパスがこのルートに一致するかを返す。
func (p PublicRoute) matches(path string) bool {
	if path == p.Path {
		return true
	}
	return p.Prefix && strings.HasPrefix(path, strings.TrimSuffix(p.Path, "/")+"/")
}

// DefaultPublicRoutes は認証不要なルートの一覧を返す。
func DefaultPublicRoutes() []PublicRoute {
	return []PublicRoute{
		{Path: "/"},
		{Path: "/health"},
		{Path: "/tasks/status"},
		{Path: "/auth/google", Prefix: true},
		{Path: "/auth/oauth-guide"},
	}
}

// NewAuthGate はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 許可リストのパスは検証せずに通す。それ以外は検証に成功した場合のみ
// 認証済みユーザーとトークン値をコンテキストに注入して後段に渡す。
func NewAuthGate(validator TokenValidator, public []PublicRoute) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. 許可リスト
			for _, route := range public {
				if route.matches(r.URL.Path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// 2. Bearerトークンの取り出し
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeGateError(w, msgTokenNotProvided)
				return
			}

			// 3. トークンの検証
			user, err := validator.Validate(r.Context(), token)
			if err != nil {
				slog.Error("failed to validate token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeGateError(w, msgInvalidToken)
				return
			}
			if user == nil {
				writeGateError(w, msgInvalidToken)
				return
			}

			// 4. 認証済みユーザーをコンテキストに注入
			recordUserID(r.Context(), user.ID)
			ctx := ContextWithPrincipal(r.Context(), user)
			ctx = ContextWithBearerToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken は"Bearer "で始まるヘッダー値からトークンを取り出す。
// プレフィックスは大文字小文字を区別する。
func extractBearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := header[len(bearerPrefix):]
	if token == "" {
		return "", false
	}
	return token, true
}

func writeGateError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="tinytasks"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
