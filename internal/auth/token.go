package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/tinytasks/internal/model"
	"github.com/hitoshi/tinytasks/internal/repository"
	"github.com/hitoshi/tinytasks/internal/security"
)

// tokenBytes はアクセストークンの乱数バイト長。hexで64文字になる。
const tokenBytes = 32

// TokenService はユーザーのプロビジョニングとアクセストークンのライフサイクルを管理する。
type TokenService struct {
	users   repository.UserRepository
	creds   repository.CredentialRepository
	metrics MetricsRecorder
	now     func() time.Time
}

// NewTokenService はTokenServiceを生成する。metricsがnilの場合は記録しない。
func NewTokenService(users repository.UserRepository, creds repository.CredentialRepository, metrics MetricsRecorder) *TokenService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &TokenService{
		users:   users,
		creds:   creds,
		metrics: metrics,
		now:     time.Now,
	}
}

// ProvisionPrincipal はGoogleのユーザーIDでユーザーを作成または更新する。
// 既存ユーザーはemail、name、アバターを最新の値で上書きする。有効状態は変更しない。
// 同時ログインで作成が競合した場合は再取得して更新する。
func (s *TokenService) ProvisionPrincipal(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	if info == nil || info.ProviderUserID == "" {
		return nil, errors.New("provider user id is required")
	}

	existing, err := s.users.FindByGoogleID(ctx, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return s.refreshProfile(ctx, existing, info)
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		GoogleID:  info.ProviderUserID,
		Email:     info.Email,
		Name:      displayName(info),
		AvatarURL: security.NormalizeAvatarURL(info.AvatarURL),
		State:     model.StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, err = s.users.FindByGoogleID(ctx, info.ProviderUserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("user vanished after duplicate insert: %w", repository.ErrDuplicate)
		}
		return s.refreshProfile(ctx, existing, info)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created", slog.String("user_id", user.ID))
	return user, nil
}

func (s *TokenService) refreshProfile(ctx context.Context, user *model.User, info *OAuthUserInfo) (*model.User, error) {
	user.Email = info.Email
	user.Name = displayName(info)
	user.AvatarURL = security.NormalizeAvatarURL(info.AvatarURL)
	user.UpdatedAt = s.now()

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return user, nil
}

// displayName はIdPが名前を返さなかった場合にemailで代用する。
func displayName(info *OAuthUserInfo) string {
	if info.Name != "" {
		return info.Name
	}
	return info.Email
}

// Issue は新しいアクセストークンを発行し、その値を返す。
// トークン値が返るのはこの一度だけ。
func (s *TokenService) Issue(ctx context.Context, userID, label string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now()
	cred := &model.Credential{
		ID:         uuid.New().String(),
		Token:      token,
		UserID:     userID,
		Name:       label,
		State:      model.StateActive,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		return "", fmt.Errorf("failed to save token: %w", err)
	}

	s.metrics.RecordTokenIssued(label)
	slog.Info("token issued",
		slog.String("user_id", userID),
		slog.String("token_id", cred.ID),
		slog.String("name", label),
	)
	return token, nil
}

// Validate はトークンを検証し、所有ユーザーを返す。
// トークンが未知・失効済み、または所有者が無効な場合はnilを返す。
// 成功時はlast_used_atを更新するが、更新の失敗は検証結果に影響しない。
func (s *TokenService) Validate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		s.metrics.RecordTokenValidation(false)
		return nil, nil
	}

	cred, err := s.creds.FindActiveByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	if cred == nil {
		s.metrics.RecordTokenValidation(false)
		return nil, nil
	}

	user, err := s.users.FindByID(ctx, cred.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find token owner: %w", err)
	}
	if !user.IsActive() {
		s.metrics.RecordTokenValidation(false)
		return nil, nil
	}

	if err := s.creds.Touch(ctx, cred.ID, s.now()); err != nil {
		slog.Warn("failed to update token last_used_at",
			slog.String("token_id", cred.ID),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.RecordTokenValidation(true)
	return user, nil
}

// Revoke はユーザー自身のトークンを値で指定して無効化する。
// 対象が無い場合（他ユーザーのトークンを含む）はfalseを返す。
func (s *TokenService) Revoke(ctx context.Context, token, userID string) (bool, error) {
	ok, err := s.creds.Revoke(ctx, token, userID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	if ok {
		s.metrics.RecordTokensRevoked(1)
		slog.Info("token revoked", slog.String("user_id", userID))
	}
	return ok, nil
}

// RevokeByID はユーザー自身のトークンをIDで指定して無効化する。
func (s *TokenService) RevokeByID(ctx context.Context, tokenID, userID string) (bool, error) {
	if _, err := uuid.Parse(tokenID); err != nil {
		return false, nil
	}

	ok, err := s.creds.RevokeByID(ctx, tokenID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	if ok {
		s.metrics.RecordTokensRevoked(1)
		slog.Info("token revoked",
			slog.String("user_id", userID),
			slog.String("token_id", tokenID),
		)
	}
	return ok, nil
}

// RevokeAll はユーザーの有効なトークンを全て無効化し、件数を返す。
func (s *TokenService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.creds.RevokeAllByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke tokens: %w", err)
	}
	s.metrics.RecordTokensRevoked(int(n))
	slog.Info("all tokens revoked",
		slog.String("user_id", userID),
		slog.Int64("count", n),
	)
	return n, nil
}

// ListActive はユーザーの有効なトークンを新しい順に返す。トークン値は含まない。
func (s *TokenService) ListActive(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	tokens, err := s.creds.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

// generateToken は暗号論的に安全な乱数からトークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
