// Package auth はOAuth認証フローとアクセストークンの管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tinytasks/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OAuthUserInfo はOAuthプロバイダーから取得し正規化したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// LoginResult はログイン成功時に発行したトークンとユーザーを表す。
type LoginResult struct {
	Token string
	User  *model.User
}

// Service はログインフローを組み立てる。
type Service struct {
	oauth   OAuthProvider
	tokens  *TokenService
	metrics MetricsRecorder
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, tokens *TokenService, metrics MetricsRecorder) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{oauth: oauth, tokens: tokens, metrics: metrics}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、アクセストークンを発行する。
// 未登録ユーザーは自動作成する。無効化されたユーザーにはErrPrincipalInactiveを返す。
func (s *Service) HandleCallback(ctx context.Context, code string, clientType ClientType) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.HandleCallback")
	defer span.End()
	span.SetAttributes(attribute.String("auth.client_type", string(clientType)))

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.RecordLogin(clientType, LoginOutcomeExchangeFail)
		span.SetStatus(codes.Error, "exchange failed")
		var extErr *ExternalAuthError
		if errors.As(err, &extErr) {
			return nil, err
		}
		return nil, externalAuthError(StageTokenExchange, err)
	}

	// 2. ユーザーを作成または更新
	user, err := s.tokens.ProvisionPrincipal(ctx, info)
	if err != nil {
		s.metrics.RecordLogin(clientType, LoginOutcomeError)
		span.SetStatus(codes.Error, "provisioning failed")
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	if !user.IsActive() {
		s.metrics.RecordLogin(clientType, LoginOutcomeInactive)
		slog.Warn("login rejected for deactivated user", slog.String("user_id", user.ID))
		return nil, ErrPrincipalInactive
	}

	// 3. トークンを発行
	token, err := s.tokens.Issue(ctx, user.ID, string(clientType)+" Login")
	if err != nil {
		s.metrics.RecordLogin(clientType, LoginOutcomeError)
		span.SetStatus(codes.Error, "issue failed")
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.metrics.RecordLogin(clientType, LoginOutcomeSuccess)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("client_type", string(clientType)),
	)
	return &LoginResult{Token: token, User: user}, nil
}
