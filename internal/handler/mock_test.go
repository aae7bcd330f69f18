package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tinytasks/internal/auth"
	"github.com/hitoshi/tinytasks/internal/middleware"
	"github.com/hitoshi/tinytasks/internal/model"
	"github.com/hitoshi/tinytasks/internal/task"
	"github.com/hitoshi/tinytasks/internal/user"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string, clientType auth.ClientType) (*auth.LoginResult, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string, clientType auth.ClientType) (*auth.LoginResult, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code, clientType)
	}
	return nil, nil
}

// mockTokenService はTokenServiceInterfaceのモック実装。
type mockTokenService struct {
	revokeFn     func(ctx context.Context, token, userID string) (bool, error)
	revokeByIDFn func(ctx context.Context, tokenID, userID string) (bool, error)
	revokeAllFn  func(ctx context.Context, userID string) (int64, error)
	listActiveFn func(ctx context.Context, userID string) ([]model.CredentialSummary, error)
}

func (m *mockTokenService) Revoke(ctx context.Context, token, userID string) (bool, error) {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, token, userID)
	}
	return false, nil
}

func (m *mockTokenService) RevokeByID(ctx context.Context, tokenID, userID string) (bool, error) {
	if m.revokeByIDFn != nil {
		return m.revokeByIDFn(ctx, tokenID, userID)
	}
	return false, nil
}

func (m *mockTokenService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	if m.revokeAllFn != nil {
		return m.revokeAllFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockTokenService) ListActive(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx, userID)
	}
	return []model.CredentialSummary{}, nil
}

// mockTaskService はTaskServiceInterfaceのモック実装。
type mockTaskService struct {
	listFn   func(ctx context.Context, userID, status string) ([]*model.Task, error)
	statsFn  func(ctx context.Context, userID string) (*model.TaskStats, error)
	getFn    func(ctx context.Context, userID, taskID string) (*model.Task, error)
	createFn func(ctx context.Context, userID string, in task.CreateInput) (*model.Task, error)
	updateFn func(ctx context.Context, userID, taskID string, in task.UpdateInput) (*model.Task, error)
	toggleFn func(ctx context.Context, userID, taskID string) (*model.Task, error)
	deleteFn func(ctx context.Context, userID, taskID string) (*model.Task, error)
}

func (m *mockTaskService) List(ctx context.Context, userID, status string) ([]*model.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, status)
	}
	return nil, nil
}

func (m *mockTaskService) Stats(ctx context.Context, userID string) (*model.TaskStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return &model.TaskStats{}, nil
}

func (m *mockTaskService) Get(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, taskID)
	}
	return nil, model.NewTaskNotFoundError(taskID)
}

func (m *mockTaskService) Create(ctx context.Context, userID string, in task.CreateInput) (*model.Task, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.Task{UserID: userID, Title: in.Title}, nil
}

func (m *mockTaskService) Update(ctx context.Context, userID, taskID string, in task.UpdateInput) (*model.Task, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, taskID, in)
	}
	return nil, model.NewTaskNotFoundError(taskID)
}

func (m *mockTaskService) Toggle(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, userID, taskID)
	}
	return nil, model.NewTaskNotFoundError(taskID)
}

func (m *mockTaskService) Delete(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, taskID)
	}
	return nil, model.NewTaskNotFoundError(taskID)
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	getProfileFn    func(ctx context.Context, userID string) (*model.User, error)
	updateProfileFn func(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
	deactivateFn    func(ctx context.Context, userID string) error
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) Deactivate(ctx context.Context, userID string) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, userID)
	}
	return nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// mockTokenValidator はmiddleware.TokenValidatorのモック実装。
type mockTokenValidator struct {
	users map[string]*model.User
}

func (m *mockTokenValidator) Validate(ctx context.Context, token string) (*model.User, error) {
	return m.users[token], nil
}

// コンパイル時にインターフェース実装を検証する
var (
	_ AuthServiceInterface      = (*mockAuthService)(nil)
	_ TokenServiceInterface     = (*mockTokenService)(nil)
	_ TaskServiceInterface      = (*mockTaskService)(nil)
	_ UserServiceInterface      = (*mockUserService)(nil)
	_ HealthChecker             = (*mockHealthChecker)(nil)
	_ middleware.TokenValidator = (*mockTokenValidator)(nil)
)

// --- テストヘルパー ---

// withPrincipal はゲート通過後と同じ状態のコンテキストをリクエストに注入する。
func withPrincipal(r *http.Request, u *model.User, token string) *http.Request {
	ctx := middleware.ContextWithPrincipal(r.Context(), u)
	ctx = middleware.ContextWithBearerToken(ctx, token)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeJSON はレスポンスボディをJSONとしてデコードする。
func decodeJSON(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("failed to decode response %q: %v", body, err)
	}
}

var testUser = &model.User{
	ID:    "user-123",
	Email: "alice@example.com",
	Name:  "Alice",
	State: model.StateActive,
}
