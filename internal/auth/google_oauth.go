package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second

	// maxProviderBodySize はIdPレスポンスとして読み込む最大サイズ。
	maxProviderBodySize = 1 << 20
)

var tracer = otel.Tracer("github.com/hitoshi/tinytasks/internal/auth")

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// HTTPClient はIdPへのリクエストに使用するクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client

	// BreakerFailures は連続失敗何回でサーキットを開くか。
	BreakerFailures uint32
	// BreakerTimeout はサーキットが開いてから半開に移るまでの時間。
	BreakerTimeout time.Duration
}

// GoogleOAuthProvider はGoogle OAuth 2.0による認証を提供する。
type GoogleOAuthProvider struct {
	config  GoogleOAuthConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = defaultBreakerFailures
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = defaultBreakerTimeout
	}

	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	failures := config.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "google-oauth",
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// IdPが4xxで拒否した場合（無効な認可コード等）と、呼び出し側が中断した場合は障害として数えない
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var aborted *callerAbortedError
			if errors.As(err, &aborted) {
				return true
			}
			var statusErr *providerStatusError
			return errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &GoogleOAuthProvider{config: config, client: client, breaker: breaker}
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
// スコープにはopenid, email, profileを含む。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// providerStatusError はIdPが200以外を返した場合のエラー。
type providerStatusError struct {
	StatusCode int
	Body       string
}

func (e *providerStatusError) Error() string {
	return fmt.Sprintf("provider responded with status %d: %s", e.StatusCode, e.Body)
}

// callerAbortedError はリクエストのコンテキストが先にキャンセルまたは期限切れになったことを表す。
// IdP側の障害ではないため、サーキットブレーカーの失敗に数えない。
type callerAbortedError struct {
	Err error
}

func (e *callerAbortedError) Error() string {
	return "request aborted by caller: " + e.Err.Error()
}

func (e *callerAbortedError) Unwrap() error {
	return e.Err
}

// abortedByCaller はctxが終了している場合にerrをcallerAbortedErrorで包む。
// http.Client自身のタイムアウトはctxを終了させないため、IdPの遅延として数えられる。
func abortedByCaller(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return &callerAbortedError{Err: err}
	}
	return err
}

// googleTokenResponse はGoogleのトークンエンドポイントのレスポンス。
type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// googleUserInfo はGoogleのユーザー情報エンドポイントのレスポンス。
// v2はid、OpenID Connect形式はsubで識別子を返す。
type googleUserInfo struct {
	ID      string `json:"id"`
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// 失敗時は段階を示す*ExternalAuthErrorを返す。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if code == "" {
		return nil, externalAuthError(StageCode, errors.New("authorization code is empty"))
	}

	ctx, span := tracer.Start(ctx, "google.ExchangeCode", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// 1. 認可コードをアクセストークンに交換
	tokenResp, err := p.exchangeToken(ctx, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		return nil, externalAuthError(StageTokenExchange, err)
	}

	// 2. アクセストークンでユーザー情報を取得
	info, err := p.fetchUserInfo(ctx, tokenResp.AccessToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile fetch failed")
		return nil, externalAuthError(StageProfile, err)
	}

	providerUserID := info.ID
	if providerUserID == "" {
		providerUserID = info.Sub
	}
	span.SetAttributes(attribute.Bool("auth.profile_received", true))

	return &OAuthUserInfo{
		ProviderUserID: providerUserID,
		Email:          info.Email,
		Name:           info.Name,
		AvatarURL:      info.Picture,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *GoogleOAuthProvider) exchangeToken(ctx context.Context, code string) (*googleTokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	body, err := p.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	var tokenResp googleTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.New("empty access token in response")
	}
	return &tokenResp, nil
}

// fetchUserInfo はアクセストークンでGoogleのユーザー情報を取得する。
func (p *GoogleOAuthProvider) fetchUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	body, err := p.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	if info.ID == "" && info.Sub == "" {
		return nil, errors.New("empty id in user info response")
	}
	return &info, nil
}

// do はサーキットブレーカー経由でリクエストを送信し、200の場合のみボディを返す。
func (p *GoogleOAuthProvider) do(ctx context.Context, newRequest func() (*http.Request, error)) ([]byte, error) {
	// 既に終了したリクエストはブレーカーに渡さない
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := newRequest()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, abortedByCaller(ctx, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBodySize))
		if err != nil {
			return nil, abortedByCaller(ctx, fmt.Errorf("failed to read response: %w", err))
		}

		trace.SpanFromContext(ctx).AddEvent("provider.response",
			trace.WithAttributes(attribute.Int("http.status_code", resp.StatusCode)))

		if resp.StatusCode != http.StatusOK {
			return nil, &providerStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
