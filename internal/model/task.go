package model

import "time"

// TaskPriority はタスクの優先度を表す。
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Valid は定義済みの優先度かどうかを返す。
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// TaskStatusFilter はタスク一覧の完了状態フィルタを表す。
type TaskStatusFilter string

const (
	TaskFilterAll       TaskStatusFilter = ""
	TaskFilterCompleted TaskStatusFilter = "completed"
	TaskFilterPending   TaskStatusFilter = "pending"
)

// ParseTaskStatusFilter は文字列からフィルタを解析する。
// 未知の値の場合はfalseを返す。
func ParseTaskStatusFilter(s string) (TaskStatusFilter, bool) {
	switch TaskStatusFilter(s) {
	case TaskFilterAll, TaskFilterCompleted, TaskFilterPending:
		return TaskStatusFilter(s), true
	}
	return "", false
}

// Done はフィルタに対応するis_doneの値を返す。全件の場合はnil。
func (f TaskStatusFilter) Done() *bool {
	switch f {
	case TaskFilterCompleted:
		v := true
		return &v
	case TaskFilterPending:
		v := false
		return &v
	}
	return nil
}

// Task はユーザーが所有するタスクを表す。
type Task struct {
	ID        string       `db:"id" json:"id"`
	UserID    string       `db:"user_id" json:"userId"`
	Title     string       `db:"title" json:"title"`
	Detail    *string      `db:"detail" json:"detail"`
	Priority  TaskPriority `db:"priority" json:"priority"`
	IsDone    bool         `db:"is_done" json:"isDone"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time    `db:"updated_at" json:"updatedAt"`
}

// TaskStats はユーザーのタスク集計を表す。
type TaskStats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	CompletionRate int `json:"completionRate"`
}
