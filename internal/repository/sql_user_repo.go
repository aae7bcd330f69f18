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

const userColumns = `id, google_id, email, name, avatar_url, state, created_at, updated_at`

// SQLUserRepo はsqlxを使用したユーザーリポジトリ。PostgreSQLとSQLiteの両方で動作する。
type SQLUserRepo struct {
	db *sqlx.DB
}

// NewSQLUserRepo はSQLUserRepoを生成する。
func NewSQLUserRepo(db *sqlx.DB) *SQLUserRepo {
	return &SQLUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByGoogleID はGoogleのユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *SQLUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = ?`, googleID)
}

func (r *SQLUserRepo) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetContext(ctx, user, r.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。google_idが重複した場合はErrDuplicateを返す。
func (r *SQLUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.GoogleID, user.Email, user.Name, user.AvatarURL,
		user.State, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はemail、name、avatar_url、updated_atを更新する。
func (r *SQLUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE users SET email = ?, name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`),
		user.Email, user.Name, user.AvatarURL, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// UpdateState はユーザーの有効状態を更新する。対象が存在しない場合はfalseを返す。
func (r *SQLUserRepo) UpdateState(ctx context.Context, id string, state model.LifecycleState, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE users SET state = ?, updated_at = ? WHERE id = ?`),
		state, at, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update user state: %w", err)
	}
	return affected(result)
}

// affected は更新行が1行以上あったかどうかを返す。
func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ UserRepository = (*SQLUserRepo)(nil)
