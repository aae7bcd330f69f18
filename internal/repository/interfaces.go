// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/tinytasks/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByGoogleID はGoogleのユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Create はユーザーを作成する。google_idが重複した場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はemail、name、avatar_url、updated_atを更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdateState はユーザーの有効状態を更新する。対象が存在しない場合はfalseを返す。
	UpdateState(ctx context.Context, id string, state model.LifecycleState, at time.Time) (bool, error)
}

// CredentialRepository はアクセストークンの永続化インターフェース。
// 失効はstateの更新のみで、行は削除しない。
type CredentialRepository interface {
	// Create はトークンを作成する。
	Create(ctx context.Context, cred *model.Credential) error

	// FindActiveByToken はトークン値が完全一致する有効なトークンを取得する。
	// 見つからない場合はnilを返す。
	FindActiveByToken(ctx context.Context, token string) (*model.Credential, error)

	// Touch はlast_used_atを更新する。
	Touch(ctx context.Context, id string, at time.Time) error

	// Revoke はトークン値と所有者が一致する有効なトークンを無効化する。
	// 更新した行があればtrueを返す。
	Revoke(ctx context.Context, token, userID string) (bool, error)

	// RevokeByID はIDと所有者が一致する有効なトークンを無効化する。
	RevokeByID(ctx context.Context, id, userID string) (bool, error)

	// RevokeAllByUser はユーザーの有効なトークンを全て無効化し、件数を返す。
	RevokeAllByUser(ctx context.Context, userID string) (int64, error)

	// ListActiveByUser はユーザーの有効なトークンを作成日時の降順で返す。
	// トークン値は含まない。
	ListActiveByUser(ctx context.Context, userID string) ([]model.CredentialSummary, error)
}

// TaskRepository はタスクの永続化インターフェース。
// 全ての操作はuser_idで絞り込み、他ユーザーのタスクには触れない。
type TaskRepository interface {
	// ListByUser はユーザーのタスクを作成日時の降順で返す。
	// doneがnilの場合は全件、それ以外はis_doneで絞り込む。
	ListByUser(ctx context.Context, userID string, done *bool) ([]*model.Task, error)

	// FindByIDAndUser はIDと所有者が一致するタスクを取得する。見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Task, error)

	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// Update はtitle、detail、priority、is_done、updated_atを更新する。
	// IDと所有者が一致する行がない場合はfalseを返す。
	Update(ctx context.Context, task *model.Task) (bool, error)

	// Toggle はis_doneを反転する。IDと所有者が一致する行がない場合はfalseを返す。
	Toggle(ctx context.Context, id, userID string, at time.Time) (bool, error)

	// Delete はタスクを削除する。IDと所有者が一致する行がない場合はfalseを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)

	// CountByUser はユーザーのタスク件数を返す。doneがnilの場合は全件。
	CountByUser(ctx context.Context, userID string, done *bool) (int, error)
}
