// Package task はタスク管理のドメインロジックを提供する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/tinytasks/internal/model"
	"github.com/hitoshi/tinytasks/internal/repository"
)

const (
	maxTitleLength  = 255
	maxDetailLength = 10000
)

// Sanitizer はユーザー入力テキストからマークアップを除去するインターフェース。
type Sanitizer interface {
	Sanitize(input string) string
}

// CreateInput はタスク作成の入力値。PriorityがnilまたはEmptyの場合はmedium。
type CreateInput struct {
	Title    string
	Detail   *string
	Priority *model.TaskPriority
}

// UpdateInput はタスク更新の入力値。nilのフィールドは変更しない。
// Detailに空文字列を指定すると詳細を削除する。
type UpdateInput struct {
	Title    *string
	Detail   *string
	Priority *model.TaskPriority
	IsDone   *bool
}

// Service はタスク管理のサービス層。
// 全ての操作は呼び出し元ユーザーのタスクに限定される。
type Service struct {
	repo      repository.TaskRepository
	sanitizer Sanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TaskRepository, sanitizer Sanitizer) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List はユーザーのタスクを新しい順に返す。
// statusは""、"completed"、"pending"のいずれか。
func (s *Service) List(ctx context.Context, userID, status string) ([]*model.Task, error) {
	filter, ok := model.ParseTaskStatusFilter(status)
	if !ok {
		return nil, model.NewInvalidFilterError(status)
	}

	tasks, err := s.repo.ListByUser(ctx, userID, filter.Done())
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// Stats はユーザーのタスク集計を返す。
func (s *Service) Stats(ctx context.Context, userID string) (*model.TaskStats, error) {
	total, err := s.repo.CountByUser(ctx, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("タスク件数の取得に失敗しました: %w", err)
	}

	done := true
	completed, err := s.repo.CountByUser(ctx, userID, &done)
	if err != nil {
		return nil, fmt.Errorf("完了タスク件数の取得に失敗しました: %w", err)
	}

	return &model.TaskStats{
		Total:          total,
		Completed:      completed,
		Pending:        total - completed,
		CompletionRate: completionRate(completed, total),
	}, nil
}

// completionRate は完了率を0〜100の整数で返す。
func completionRate(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Get はユーザーのタスクを1件取得する。
func (s *Service) Get(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if !isValidID(taskID) {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	task, err := s.repo.FindByIDAndUser(ctx, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return task, nil
}

// Create はタスクを作成する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Task, error) {
	title, err := s.cleanTitle(in.Title)
	if err != nil {
		return nil, err
	}

	detail, err := s.cleanDetail(in.Detail)
	if err != nil {
		return nil, err
	}

	priority := model.PriorityMedium
	if in.Priority != nil && *in.Priority != "" {
		if !in.Priority.Valid() {
			return nil, model.NewInvalidTaskInputError(fmt.Sprintf("unknown priority %q", *in.Priority))
		}
		priority = *in.Priority
	}

	now := s.now()
	task := &model.Task{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Detail:    detail,
		Priority:  priority,
		IsDone:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	slog.Info("task created",
		slog.String("user_id", userID),
		slog.String("task_id", task.ID),
	)
	return task, nil
}

// Update はタスクを部分更新する。
func (s *Service) Update(ctx context.Context, userID, taskID string, in UpdateInput) (*model.Task, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title, err := s.cleanTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		task.Title = title
	}
	if in.Detail != nil {
		detail, err := s.cleanDetail(in.Detail)
		if err != nil {
			return nil, err
		}
		task.Detail = detail
	}
	// Createと同様に空文字の優先度は未指定として扱い、現在値を保持する
	if in.Priority != nil && *in.Priority != "" {
		if !in.Priority.Valid() {
			return nil, model.NewInvalidTaskInputError(fmt.Sprintf("unknown priority %q", *in.Priority))
		}
		task.Priority = *in.Priority
	}
	if in.IsDone != nil {
		task.IsDone = *in.IsDone
	}
	task.UpdatedAt = s.now()

	ok, err := s.repo.Update(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return task, nil
}

// Toggle はタスクの完了状態を反転する。
func (s *Service) Toggle(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if !isValidID(taskID) {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	ok, err := s.repo.Toggle(ctx, taskID, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("タスクの完了状態の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return s.Get(ctx, userID, taskID)
}

// Delete はタスクを削除し、削除したタスクを返す。
func (s *Service) Delete(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	ok, err := s.repo.Delete(ctx, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	slog.Info("task deleted",
		slog.String("user_id", userID),
		slog.String("task_id", taskID),
	)
	return task, nil
}

func (s *Service) cleanTitle(raw string) (string, error) {
	title := s.sanitize(raw)
	if title == "" {
		return "", model.NewInvalidTaskInputError("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", model.NewInvalidTaskInputError(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	return title, nil
}

// cleanDetail は詳細をサニタイズする。空の場合はnilを返す。
func (s *Service) cleanDetail(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	detail := s.sanitize(*raw)
	if detail == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(detail) > maxDetailLength {
		return nil, model.NewInvalidTaskInputError(fmt.Sprintf("detail must be at most %d characters", maxDetailLength))
	}
	return &detail, nil
}

func (s *Service) sanitize(input string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(input)
	}
	return s.sanitizer.Sanitize(input)
}

// isValidID はUUID形式のIDかどうかを返す。不正なIDは存在しないタスクとして扱う。
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
