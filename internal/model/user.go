// Package model はドメインモデルを定義する。
package model

import "time"

// LifecycleState はユーザーおよびアクセストークンの有効状態を表す。
type LifecycleState string

const (
	// StateActive は有効状態。
	StateActive LifecycleState = "active"
	// StateInactive は無効化済み（論理削除）状態。
	StateInactive LifecycleState = "inactive"
)

// IsActive は有効状態かどうかを返す。
func (s LifecycleState) IsActive() bool {
	return s == StateActive
}

// User はサービス利用ユーザーを表す。
// GoogleIDは作成後に変更しない。物理削除は行わず、無効化のみ行う。
type User struct {
	ID        string         `db:"id"`
	GoogleID  string         `db:"google_id"`
	Email     string         `db:"email"`
	Name      string         `db:"name"`
	AvatarURL *string        `db:"avatar_url"`
	State     LifecycleState `db:"state"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// IsActive はユーザーが有効かどうかを返す。
func (u *User) IsActive() bool {
	return u != nil && u.State.IsActive()
}
