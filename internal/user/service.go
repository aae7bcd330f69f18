// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/tinytasks/internal/model"
	"github.com/hitoshi/tinytasks/internal/repository"
)

const maxNameLength = 255

// Sanitizer はユーザー入力テキストからマークアップを除去するインターフェース。
type Sanitizer interface {
	Sanitize(input string) string
}

// ProfileUpdate はプロフィール更新の入力値。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// Service はユーザー管理のサービス層。
// プロフィールの参照・更新と、退会（無効化）を提供する。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer Sanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer Sanitizer) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// GetProfile は有効なユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if !user.IsActive() {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は名前とメールアドレスを更新する。
// 次回のGoogleログイン時にはIdPの値で上書きされる。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if s.sanitizer != nil {
			name = s.sanitizer.Sanitize(name)
		}
		if name == "" {
			return nil, model.NewInvalidProfileInputError("name is required")
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			return nil, model.NewInvalidProfileInputError(fmt.Sprintf("name must be at most %d characters", maxNameLength))
		}
		user.Name = name
	}

	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}

	user.UpdatedAt = s.now()
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return user, nil
}

// normalizeEmail は表示名なしの単一アドレスのみ受け付ける。
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Name != "" || addr.Address != raw {
		return "", model.NewInvalidProfileInputError("email is not a valid address")
	}
	return addr.Address, nil
}

// Deactivate はユーザーを無効化する（退会）。
// ユーザーは物理削除しない。発行済みトークンの行は残るが、以後の検証には失敗する。
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	return s.setState(ctx, userID, model.StateInactive)
}

// Activate は無効化されたユーザーを有効に戻す。
// 無効化前に発行したトークンも再び検証に成功するようになる。
func (s *Service) Activate(ctx context.Context, userID string) error {
	return s.setState(ctx, userID, model.StateActive)
}

func (s *Service) setState(ctx context.Context, userID string, state model.LifecycleState) error {
	ok, err := s.userRepo.UpdateState(ctx, userID, state, s.now())
	if err != nil {
		return fmt.Errorf("ユーザー状態の更新に失敗しました: %w", err)
	}
	if !ok {
		return model.NewUserNotFoundError()
	}

	slog.Info("user state changed",
		slog.String("user_id", userID),
		slog.String("state", string(state)),
	)
	return nil
}
