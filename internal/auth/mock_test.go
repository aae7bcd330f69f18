package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/tinytasks/internal/model"
	"github.com/hitoshi/tinytasks/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByGoogleIDFn func(ctx context.Context, googleID string) (*model.User, error)
	createFn         func(ctx context.Context, user *model.User) error
	updateProfileFn  func(ctx context.Context, user *model.User) error
	updateStateFn    func(ctx context.Context, id string, state model.LifecycleState, at time.Time) (bool, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if m.findByGoogleIDFn != nil {
		return m.findByGoogleIDFn(ctx, googleID)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdateState(ctx context.Context, id string, state model.LifecycleState, at time.Time) (bool, error) {
	if m.updateStateFn != nil {
		return m.updateStateFn(ctx, id, state, at)
	}
	return true, nil
}

type mockCredentialRepo struct {
	createFn            func(ctx context.Context, cred *model.Credential) error
	findActiveByTokenFn func(ctx context.Context, token string) (*model.Credential, error)
	touchFn             func(ctx context.Context, id string, at time.Time) error
	revokeFn            func(ctx context.Context, token, userID string) (bool, error)
	revokeByIDFn        func(ctx context.Context, id, userID string) (bool, error)
	revokeAllByUserFn   func(ctx context.Context, userID string) (int64, error)
	listActiveByUserFn  func(ctx context.Context, userID string) ([]model.CredentialSummary, error)
}

func (m *mockCredentialRepo) Create(ctx context.Context, cred *model.Credential) error {
	if m.createFn != nil {
		return m.createFn(ctx, cred)
	}
	return nil
}

func (m *mockCredentialRepo) FindActiveByToken(ctx context.Context, token string) (*model.Credential, error) {
	if m.findActiveByTokenFn != nil {
		return m.findActiveByTokenFn(ctx, token)
	}
	return nil, nil
}

func (m *mockCredentialRepo) Touch(ctx context.Context, id string, at time.Time) error {
	if m.touchFn != nil {
		return m.touchFn(ctx, id, at)
	}
	return nil
}

func (m *mockCredentialRepo) Revoke(ctx context.Context, token, userID string) (bool, error) {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, token, userID)
	}
	return false, nil
}

func (m *mockCredentialRepo) RevokeByID(ctx context.Context, id, userID string) (bool, error) {
	if m.revokeByIDFn != nil {
		return m.revokeByIDFn(ctx, id, userID)
	}
	return false, nil
}

func (m *mockCredentialRepo) RevokeAllByUser(ctx context.Context, userID string) (int64, error) {
	if m.revokeAllByUserFn != nil {
		return m.revokeAllByUserFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockCredentialRepo) ListActiveByUser(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	if m.listActiveByUserFn != nil {
		return m.listActiveByUserFn(ctx, userID)
	}
	return []model.CredentialSummary{}, nil
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// recordingMetrics は記録されたメトリクスを保持するテスト用実装。
type recordingMetrics struct {
	mu          sync.Mutex
	logins      []string
	issued      []string
	validations []bool
	revoked     int
}

func (r *recordingMetrics) RecordLogin(clientType ClientType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, string(clientType)+":"+outcome)
}

func (r *recordingMetrics) RecordTokenIssued(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued = append(r.issued, name)
}

func (r *recordingMetrics) RecordTokenValidation(valid bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validations = append(r.validations, valid)
}

func (r *recordingMetrics) RecordTokensRevoked(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked += n
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.CredentialRepository = (*mockCredentialRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)
var _ MetricsRecorder = (*recordingMetrics)(nil)
