package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/tinytasks/internal/model"
	"github.com/jmoiron/sqlx"
)

// SQLCredentialRepo はsqlxを使用したアクセストークンリポジトリ。
type SQLCredentialRepo struct {
	db *sqlx.DB
}

// NewSQLCredentialRepo はSQLCredentialRepoを生成する。
func NewSQLCredentialRepo(db *sqlx.DB) *SQLCredentialRepo {
	return &SQLCredentialRepo{db: db}
}

// Create はトークンを作成する。
func (r *SQLCredentialRepo) Create(ctx context.Context, cred *model.Credential) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO user_tokens (id, token, user_id, name, state, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		cred.ID, cred.Token, cred.UserID, cred.Name, cred.State, cred.CreatedAt, cred.LastUsedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

// FindActiveByToken はトークン値が完全一致する有効なトークンを取得する。
// 見つからない場合はnilを返す。
func (r *SQLCredentialRepo) FindActiveByToken(ctx context.Context, token string) (*model.Credential, error) {
	cred := &model.Credential{}
	err := r.db.GetContext(ctx, cred, r.db.Rebind(
		`SELECT id, token, user_id, name, state, created_at, last_used_at
		 FROM user_tokens
		 WHERE token = ? AND state = ?`),
		token, model.StateActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	return cred, nil
}

// Touch はlast_used_atを更新する。
func (r *SQLCredentialRepo) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE user_tokens SET last_used_at = ? WHERE id = ?`),
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch credential: %w", err)
	}
	return nil
}

// Revoke はトークン値と所有者が一致する有効なトークンを無効化する。
func (r *SQLCredentialRepo) Revoke(ctx context.Context, token, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE user_tokens SET state = ?
		 WHERE token = ? AND user_id = ? AND state = ?`),
		model.StateInactive, token, userID, model.StateActive,
	)
	if err != nil {
		return false, fmt.Errorf("failed to revoke credential: %w", err)
	}
	return affected(result)
}

// RevokeByID はIDと所有者が一致する有効なトークンを無効化する。
func (r *SQLCredentialRepo) RevokeByID(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE user_tokens SET state = ?
		 WHERE id = ? AND user_id = ? AND state = ?`),
		model.StateInactive, id, userID, model.StateActive,
	)
	if err != nil {
		return false, fmt.Errorf("failed to revoke credential by id: %w", err)
	}
	return affected(result)
}

// RevokeAllByUser はユーザーの有効なトークンを全て無効化し、件数を返す。
func (r *SQLCredentialRepo) RevokeAllByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE user_tokens SET state = ? WHERE user_id = ? AND state = ?`),
		model.StateInactive, userID, model.StateActive,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke credentials: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListActiveByUser はユーザーの有効なトークンを作成日時の降順で返す。
func (r *SQLCredentialRepo) ListActiveByUser(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	summaries := []model.CredentialSummary{}
	err := r.db.SelectContext(ctx, &summaries, r.db.Rebind(
		`SELECT id, name, created_at, last_used_at
		 FROM user_tokens
		 WHERE user_id = ? AND state = ?
		 ORDER BY created_at DESC, id DESC`),
		userID, model.StateActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return summaries, nil
}

// compile-time interface check
var _ CredentialRepository = (*SQLCredentialRepo)(nil)
