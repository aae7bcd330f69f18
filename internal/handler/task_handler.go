package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tinytasks/internal/middleware"
	"github.com/hitoshi/tinytasks/internal/model"
	"github.com/hitoshi/tinytasks/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
// 全てのメソッドは呼び出し元ユーザーのタスクに限定される。
type TaskServiceInterface interface {
	List(ctx context.Context, userID, status string) ([]*model.Task, error)
	Stats(ctx context.Context, userID string) (*model.TaskStats, error)
	Get(ctx context.Context, userID, taskID string) (*model.Task, error)
	Create(ctx context.Context, userID string, in task.CreateInput) (*model.Task, error)
	Update(ctx context.Context, userID, taskID string, in task.UpdateInput) (*model.Task, error)
	Toggle(ctx context.Context, userID, taskID string) (*model.Task, error)
	Delete(ctx context.Context, userID, taskID string) (*model.Task, error)
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	Title    string              `json:"title"`
	Detail   *string             `json:"detail"`
	Priority *model.TaskPriority `json:"priority"`
}

// updateTaskRequest はタスク更新リクエストのボディ。省略したフィールドは変更しない。
type updateTaskRequest struct {
	Title    *string             `json:"title"`
	Detail   *string             `json:"detail"`
	Priority *model.TaskPriority `json:"priority"`
	IsDone   *bool               `json:"isDone"`
}

// List はタスク一覧を返す。
// GET /tasks?status=completed|pending
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	tasks, err := h.service.List(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Stats はタスクの集計を返す。
// GET /tasks/stats
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Get はタスクを1件返す。
// GET /tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	t, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Create はタスクを作成する。
// POST /tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createTaskRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	t, err := h.service.Create(r.Context(), userID, task.CreateInput{
		Title:    req.Title,
		Detail:   req.Detail,
		Priority: req.Priority,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Update はタスクを部分更新する。
// PATCH /tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateTaskRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	t, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), task.UpdateInput{
		Title:    req.Title,
		Detail:   req.Detail,
		Priority: req.Priority,
		IsDone:   req.IsDone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Toggle はタスクの完了状態を反転する。
// PATCH /tasks/{id}/toggle
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	t, err := h.service.Toggle(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete はタスクを削除し、削除したタスクを返す。
// DELETE /tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	t, err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
