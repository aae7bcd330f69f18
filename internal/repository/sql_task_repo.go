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

const taskColumns = `id, user_id, title, detail, priority, is_done, created_at, updated_at`

// SQLTaskRepo はsqlxを使用したタスクリポジトリ。
// 全てのクエリはWHERE句にuser_idを含む。
type SQLTaskRepo struct {
	db *sqlx.DB
}

// NewSQLTaskRepo はSQLTaskRepoを生成する。
func NewSQLTaskRepo(db *sqlx.DB) *SQLTaskRepo {
	return &SQLTaskRepo{db: db}
}

// ListByUser はユーザーのタスクを作成日時の降順で返す。
func (r *SQLTaskRepo) ListByUser(ctx context.Context, userID string, done *bool) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if done != nil {
		query += ` AND is_done = ?`
		args = append(args, *done)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	tasks := []*model.Task{}
	if err := r.db.SelectContext(ctx, &tasks, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// FindByIDAndUser はIDと所有者が一致するタスクを取得する。見つからない場合はnilを返す。
func (r *SQLTaskRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Task, error) {
	task := &model.Task{}
	err := r.db.GetContext(ctx, task, r.db.Rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`),
		id, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// Create はタスクを作成する。
func (r *SQLTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		task.ID, task.UserID, task.Title, task.Detail, task.Priority,
		task.IsDone, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Update はtitle、detail、priority、is_done、updated_atを更新する。
func (r *SQLTaskRepo) Update(ctx context.Context, task *model.Task) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE tasks SET title = ?, detail = ?, priority = ?, is_done = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`),
		task.Title, task.Detail, task.Priority, task.IsDone, task.UpdatedAt,
		task.ID, task.UserID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}
	return affected(result)
}

// Toggle はis_doneを反転する。読み取りと書き込みを1文で行う。
func (r *SQLTaskRepo) Toggle(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE tasks SET is_done = NOT is_done, updated_at = ?
		 WHERE id = ? AND user_id = ?`),
		at, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to toggle task: %w", err)
	}
	return affected(result)
}

// Delete はタスクを削除する。
func (r *SQLTaskRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`),
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return affected(result)
}

// CountByUser はユーザーのタスク件数を返す。
func (r *SQLTaskRepo) CountByUser(ctx context.Context, userID string, done *bool) (int, error) {
	query := `SELECT count(*) FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if done != nil {
		query += ` AND is_done = ?`
		args = append(args, *done)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ TaskRepository = (*SQLTaskRepo)(nil)
