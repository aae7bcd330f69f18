package model

import "time"

// Credential はクライアントに発行した不透明なアクセストークンを表す。
// Tokenは秘匿値のためJSONには出力しない。失効は無効化のみで、行は削除しない。
type Credential struct {
	ID         string         `db:"id"`
	Token      string         `db:"token" json:"-"`
	UserID     string         `db:"user_id"`
	Name       string         `db:"name"`
	State      LifecycleState `db:"state"`
	CreatedAt  time.Time      `db:"created_at"`
	LastUsedAt time.Time      `db:"last_used_at"`
}

// CredentialSummary はトークン一覧用の射影。トークン値は持たない。
type CredentialSummary struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	LastUsedAt time.Time `db:"last_used_at" json:"lastUsedAt"`
}
