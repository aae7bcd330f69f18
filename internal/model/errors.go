// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// クライアントに返す原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, system
	Action   string // クライアント向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTaskNotFound        = "TASK_NOT_FOUND"
	ErrCodeInvalidTaskInput    = "INVALID_TASK_INPUT"
	ErrCodeInvalidFilter       = "INVALID_FILTER"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeInvalidProfileInput = "INVALID_PROFILE_INPUT"
)

// NewTaskNotFoundError はタスク未検出エラーを生成する。
// 他ユーザーのタスクも同じエラーになる。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("Task with ID %s not found", taskID),
		Category: "task",
		Action:   "Check the task ID.",
	}
}

// NewInvalidTaskInputError はタスク入力値エラーを生成する。
func NewInvalidTaskInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTaskInput,
		Message:  fmt.Sprintf("Invalid task input: %s", reason),
		Category: "validation",
		Action:   "Title must be 1-255 characters and priority one of low, medium, high.",
	}
}

// NewInvalidFilterError は無効なフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("Invalid status filter: %s", filter),
		Category: "validation",
		Action:   "Use status=completed or status=pending, or omit it.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewInvalidProfileInputError はプロフィール入力値エラーを生成する。
func NewInvalidProfileInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfileInput,
		Message:  fmt.Sprintf("Invalid profile input: %s", reason),
		Category: "validation",
		Action:   "Provide a non-empty name and a valid email address.",
	}
}
