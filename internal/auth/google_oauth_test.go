package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoogleOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	loginURL := provider.GetLoginURL("test-state-value")

	if !strings.HasPrefix(loginURL, defaultGoogleAuthURL+"?") {
		t.Fatalf("URL should start with the Google auth endpoint, got %q", loginURL)
	}

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("failed to parse login URL: %v", err)
	}
	q := parsed.Query()

	tests := []struct {
		param string
		want  string
	}{
		{"client_id", "test-client-id"},
		{"redirect_uri", "http://localhost:8080/auth/google/callback"},
		{"state", "test-state-value"},
		{"response_type", "code"},
		{"scope", "openid email profile"},
	}

	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			if got := q.Get(tt.param); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.param, got, tt.want)
			}
		})
	}
}

// TestGoogleOAuthProvider_GetLoginURL_PreservesBase64State はbase64の+や/がURLで壊れないことを検証する。
func TestGoogleOAuthProvider_GetLoginURL_PreservesBase64State(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{ClientID: "id"})
	state := "eyJ+YS/I=="

	parsed, err := url.Parse(provider.GetLoginURL(state))
	if err != nil {
		t.Fatalf("failed to parse login URL: %v", err)
	}
	if got := parsed.Query().Get("state"); got != state {
		t.Errorf("state = %q, want %q", got, state)
	}
}

func newUserInfoServer(t *testing.T, body map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Authorizationヘッダーの検証
		if got := r.Header.Get("Authorization"); got != "Bearer test-access-token" {
			t.Errorf("unexpected Authorization header: %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
}

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token endpoint method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("code"); got != "test-auth-code" {
			t.Errorf("code = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
}

func TestGoogleOAuthProvider_ExchangeCode_Success(t *testing.T) {
	tokenServer := newTokenServer(t)
	defer tokenServer.Close()

	userInfoServer := newUserInfoServer(t, map[string]interface{}{
		"id":      "google-id-12345",
		"email":   "user@gmail.com",
		"name":    "Google User",
		"picture": "https://lh3.googleusercontent.com/a/photo.jpg",
	})
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	userInfo, err := provider.ExchangeCode(context.Background(), "test-auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if userInfo.ProviderUserID != "google-id-12345" {
		t.Errorf("providerUserID = %q, want %q", userInfo.ProviderUserID, "google-id-12345")
	}
	if userInfo.Email != "user@gmail.com" {
		t.Errorf("email = %q, want %q", userInfo.Email, "user@gmail.com")
	}
	if userInfo.Name != "Google User" {
		t.Errorf("name = %q, want %q", userInfo.Name, "Google User")
	}
	if userInfo.AvatarURL != "https://lh3.googleusercontent.com/a/photo.jpg" {
		t.Errorf("avatarURL = %q", userInfo.AvatarURL)
	}
}

// TestGoogleOAuthProvider_ExchangeCode_SubFallback はidが無い場合にsubを識別子として使うことを検証する。
func TestGoogleOAuthProvider_ExchangeCode_SubFallback(t *testing.T) {
	tokenServer := newTokenServer(t)
	defer tokenServer.Close()

	userInfoServer := newUserInfoServer(t, map[string]interface{}{
		"sub":   "google-sub-999",
		"email": "user@gmail.com",
	})
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		TokenURL:    tokenServer.URL,
		UserInfoURL: userInfoServer.URL,
	})

	userInfo, err := provider.ExchangeCode(context.Background(), "test-auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if userInfo.ProviderUserID != "google-sub-999" {
		t.Errorf("providerUserID = %q, want google-sub-999", userInfo.ProviderUserID)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_EmptyCode(t *testing.T) {
	var calls int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{TokenURL: tokenServer.URL})

	_, err := provider.ExchangeCode(context.Background(), "")

	var extErr *ExternalAuthError
	if !errors.As(err, &extErr) || extErr.Stage != StageCode {
		t.Fatalf("expected StageCode error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("token endpoint should not be called without a code")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     tokenServer.URL,
	})

	_, err := provider.ExchangeCode(context.Background(), "invalid-code")

	var extErr *ExternalAuthError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExternalAuthError, got %v", err)
	}
	if extErr.Stage != StageTokenExchange {
		t.Errorf("stage = %q, want %q", extErr.Stage, StageTokenExchange)
	}
	// IdPのエラー内容はError()に含めない
	if strings.Contains(err.Error(), "invalid_grant") {
		t.Errorf("error message should not leak provider body: %q", err.Error())
	}
	if !strings.Contains(errors.Unwrap(err).Error(), "invalid_grant") {
		t.Error("wrapped cause should keep provider body for logs")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_MissingAccessToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{TokenURL: tokenServer.URL})

	_, err := provider.ExchangeCode(context.Background(), "code")

	var extErr *ExternalAuthError
	if !errors.As(err, &extErr) || extErr.Stage != StageTokenExchange {
		t.Fatalf("expected StageTokenExchange error, got %v", err)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_UserInfoError(t *testing.T) {
	tokenServer := newTokenServer(t)
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	_, err := provider.ExchangeCode(context.Background(), "test-auth-code")

	var extErr *ExternalAuthError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExternalAuthError, got %v", err)
	}
	if extErr.Stage != StageProfile {
		t.Errorf("stage = %q, want %q", extErr.Stage, StageProfile)
	}
}

// TestGoogleOAuthProvider_BreakerOpensOnServerErrors は5xxが続くとIdPへの送信を止めることを検証する。
func TestGoogleOAuthProvider_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		TokenURL:        tokenServer.URL,
		BreakerFailures: 2,
	})

	for i := 0; i < 3; i++ {
		_, err := provider.ExchangeCode(context.Background(), "code")
		var extErr *ExternalAuthError
		if !errors.As(err, &extErr) || extErr.Stage != StageTokenExchange {
			t.Fatalf("call %d: expected StageTokenExchange error, got %v", i, err)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("token endpoint calls = %d, want 2 (third call should fail fast)", got)
	}
}

// TestGoogleOAuthProvider_BreakerIgnoresAbortedRequests は呼び出し側のキャンセルやタイムアウトで
// サーキットが開かず、他のユーザーのログインが通ることを検証する。
func TestGoogleOAuthProvider_BreakerIgnoresAbortedRequests(t *testing.T) {
	var calls int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		r.ParseForm()
		if r.PostForm.Get("code") == "slow-code" {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "test-access-token"})
	}))
	defer tokenServer.Close()

	userInfoServer := newUserInfoServer(t, map[string]interface{}{"id": "google-id-1", "email": "a@example.com"})
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		TokenURL:        tokenServer.URL,
		UserInfoURL:     userInfoServer.URL,
		BreakerFailures: 2,
	})

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := provider.ExchangeCode(ctx, "slow-code")
		cancel()
		var extErr *ExternalAuthError
		if !errors.As(err, &extErr) || extErr.Stage != StageTokenExchange {
			t.Fatalf("call %d: expected StageTokenExchange error, got %v", i, err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("call %d: error should wrap context.DeadlineExceeded, got %v", i, err)
		}
	}

	// キャンセル済みのコンテキストはIdPに到達しない
	before := atomic.LoadInt32(&calls)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := provider.ExchangeCode(ctx, "test-auth-code"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != before {
		t.Errorf("cancelled request reached the token endpoint (%d -> %d)", before, got)
	}

	info, err := provider.ExchangeCode(context.Background(), "test-auth-code")
	if err != nil {
		t.Fatalf("healthy login after aborted requests failed: %v", err)
	}
	if info.ProviderUserID != "google-id-1" {
		t.Errorf("providerUserID = %q, want google-id-1", info.ProviderUserID)
	}
}

// TestGoogleOAuthProvider_BreakerIgnoresClientErrors は4xxでサーキットが開かないことを検証する。
func TestGoogleOAuthProvider_BreakerIgnoresClientErrors(t *testing.T) {
	var calls int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		TokenURL:        tokenServer.URL,
		BreakerFailures: 2,
	})

	for i := 0; i < 4; i++ {
		if _, err := provider.ExchangeCode(context.Background(), "bad-code"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("token endpoint calls = %d, want 4", got)
	}
}
