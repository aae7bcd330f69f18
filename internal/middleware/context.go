// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/tinytasks/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	principalContextKey   = contextKey("principal")
	bearerTokenContextKey = contextKey("bearer_token")
	requestLogContextKey  = contextKey("request_log")
)

// ContextWithPrincipal はコンテキストに認証済みユーザーを注入する。
func ContextWithPrincipal(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, principalContextKey, user)
}

// PrincipalFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ゲートを通過したリクエストでのみ値がある。
func PrincipalFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(principalContextKey).(*model.User)
	return user, ok && user != nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーのIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, ok := PrincipalFromContext(ctx)
	if !ok || user.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return user.ID, nil
}

// ContextWithBearerToken はリクエストで提示されたトークン値をコンテキストに注入する。
// ログアウト時に自身のトークンを失効させるために使う。
func ContextWithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenContextKey, token)
}

// BearerTokenFromContext はリクエストで提示されたトークン値を取得する。
func BearerTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerTokenContextKey).(string)
	return token, ok && token != ""
}

// requestLog はロギングミドルウェアと後段のミドルウェアで共有するリクエスト情報。
// 後段で派生したコンテキストの値はロギングミドルウェアから見えないため、ポインタで受け渡す。
type requestLog struct {
	userID string
}

func contextWithRequestLog(ctx context.Context, rl *requestLog) context.Context {
	return context.WithValue(ctx, requestLogContextKey, rl)
}

// recordUserID はリクエストログにユーザーIDを記録する。
func recordUserID(ctx context.Context, userID string) {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		rl.userID = userID
	}
}
