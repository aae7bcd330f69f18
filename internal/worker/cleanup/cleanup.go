// Package cleanup はタスクデータの一括削除ジョブを提供する。
// 全ユーザー、または指定ユーザーのタスクを削除する保守用コマンドから使用する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLの実行とプレースホルダ変換を抽象化するインターフェース。
// *sqlx.DB や *sqlx.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
}

// CleanupJob はタスクの一括削除ジョブ。
// 冪等で、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:     db,
		logger: logger,
	}
}

// Run はタスクを削除し、削除件数を返す。
// userIDが空の場合は全ユーザーのタスクを削除する。
func (j *CleanupJob) Run(ctx context.Context, userID string) (int64, error) {
	start := time.Now()

	query := `DELETE FROM tasks`
	var args []any
	if userID != "" {
		query = j.db.Rebind(`DELETE FROM tasks WHERE user_id = ?`)
		args = append(args, userID)
	}

	scope := scopeOf(userID)

	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("タスク削除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.String("scope", scope),
		)
		return 0, fmt.Errorf("タスク削除の実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("タスク削除ジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.String("scope", scope),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}

func scopeOf(userID string) string {
	if userID == "" {
		return "all"
	}
	return "user:" + userID
}
