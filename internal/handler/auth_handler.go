// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/tinytasks/internal/auth"
	"github.com/hitoshi/tinytasks/internal/middleware"
	"github.com/hitoshi/tinytasks/internal/model"
	"github.com/hitoshi/tinytasks/internal/security"
)

// AuthServiceInterface は認証ハンドラーが必要とするログインフローのインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string, clientType auth.ClientType) (*auth.LoginResult, error)
}

// TokenServiceInterface はトークン管理エンドポイントが必要とするインターフェース。
type TokenServiceInterface interface {
	Revoke(ctx context.Context, token, userID string) (bool, error)
	RevokeByID(ctx context.Context, tokenID, userID string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int64, error)
	ListActive(ctx context.Context, userID string) ([]model.CredentialSummary, error)
}

// AuthHandler はOAuth認証とトークン管理のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	tokens  TokenServiceInterface
	now     func() time.Time
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, tokens TokenServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
		tokens:  tokens,
		now:     time.Now,
	}
}

// userSummary はログイン応答と/auth/meで返すユーザー情報。
type userSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func toUserSummary(u *model.User) userSummary {
	return userSummary{ID: u.ID, Email: u.Email, Name: u.Name}
}

// loginResponse はコールバック成功時のJSONレスポンス。
// クライアント種別ごとに使わないフィールドは省略する。
type loginResponse struct {
	Success      bool        `json:"success"`
	Token        string      `json:"token"`
	User         userSummary `json:"user"`
	ClientType   string      `json:"client_type"`
	Message      string      `json:"message"`
	Instructions string      `json:"instructions,omitempty"`
	AccessToken  string      `json:"access_token,omitempty"`
	TokenType    string      `json:"token_type,omitempty"`
}

// revokeRequest はPOST /auth/revokeの任意ボディ。
type revokeRequest struct {
	TokenID tokenIDParam `json:"tokenId"`
}

// errInvalidTokenID はtokenIdが文字列でも数値でもない場合のエラー。
var errInvalidTokenID = errors.New("tokenId must be a string or a number")

// tokenIDParam は文字列または数値のtokenIdを文字列として受け取る。
// 数値IDを送る既存クライアントとの互換のため。
type tokenIDParam string

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (p *tokenIDParam) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = tokenIDParam(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*p = tokenIDParam(n.String())
		return nil
	}
	return errInvalidTokenID
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google?client_type=macos|mcp|web&redirect_uri=...
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientType := auth.ParseClientType(q.Get("client_type"))

	redirectURI := q.Get("redirect_uri")
	if redirectURI != "" {
		if err := security.ValidateRedirectURL(redirectURI); err != nil {
			slog.Warn("rejected redirect_uri", slog.String("error", err.Error()))
			writeErrorMessage(w, http.StatusBadRequest, "Invalid redirect_uri")
			return
		}
	}

	state := auth.EncodeLoginState(auth.NewLoginState(clientType, redirectURI, h.now()))
	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusFound)
}

// GoogleCallback はOAuthコールバックを処理し、クライアント種別に応じて応答する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Authorization code not provided")
		return
	}

	// stateが壊れていてもwebとして続行する
	state := auth.DecodeLoginState(q.Get("state"))

	result, err := h.service.HandleCallback(r.Context(), code, state.ClientType)
	if err != nil {
		writeCallbackError(w, err)
		return
	}

	user := toUserSummary(result.User)

	switch state.ClientType {
	case auth.ClientMacOS:
		writeJSON(w, http.StatusOK, loginResponse{
			Success:      true,
			Token:        result.Token,
			User:         user,
			ClientType:   string(auth.ClientMacOS),
			Message:      "Authentication successful for macOS app",
			Instructions: "Copy this token to your macOS app for authentication",
		})
	case auth.ClientMCP:
		writeJSON(w, http.StatusOK, loginResponse{
			Success:     true,
			Token:       result.Token,
			User:        user,
			ClientType:  string(auth.ClientMCP),
			Message:     "OAuth authentication successful for MCP client",
			AccessToken: result.Token,
			TokenType:   "Bearer",
		})
	default:
		if state.CustomRedirectURI != nil {
			target, err := buildLoginRedirect(*state.CustomRedirectURI, result.Token, user)
			if err == nil {
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			slog.Warn("ignored unsafe redirect in oauth state", slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusOK, loginResponse{
			Success:    true,
			Token:      result.Token,
			User:       user,
			ClientType: string(auth.ClientWeb),
			Message:    "Authentication successful",
		})
	}
}

// writeCallbackError はログインフローのエラーをステータスコードに変換する。
// IdPの応答内容はログにのみ出力する。
func writeCallbackError(w http.ResponseWriter, err error) {
	var extErr *auth.ExternalAuthError
	switch {
	case errors.Is(err, auth.ErrPrincipalInactive):
		slog.Warn("login rejected for inactive user")
		writeErrorMessage(w, http.StatusForbidden, "Account is deactivated")
	case errors.As(err, &extErr):
		attrs := []any{slog.String("stage", string(extErr.Stage))}
		if extErr.Err != nil {
			attrs = append(attrs, slog.String("error", extErr.Err.Error()))
		}
		slog.Error("oauth exchange failed", attrs...)
		if extErr.Stage == auth.StageProfile {
			writeErrorMessage(w, http.StatusInternalServerError, "Authentication failed")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "Failed to get access token")
	default:
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		writeErrorMessage(w, http.StatusInternalServerError, "Authentication failed")
	}
}

// buildLoginRedirect はリダイレクト先にtokenとuserのクエリを付与したURLを返す。
// stateはクライアントが改ざんできるため、ここでも検証し直す。
func buildLoginRedirect(redirectURI, token string, user userSummary) (string, error) {
	if err := security.ValidateRedirectURL(redirectURI); err != nil {
		return "", err
	}
	target, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	userJSON, err := json.Marshal(user)
	if err != nil {
		return "", err
	}

	q := target.Query()
	q.Set("token", token)
	q.Set("user", string(userJSON))
	target.RawQuery = q.Encode()
	return target.String(), nil
}

// Me は現在のユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]userSummary{"user": toUserSummary(user)})
}

// ListTokens は有効なトークンの一覧を返す。トークン値は含まない。
// GET /auth/tokens
func (h *AuthHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	tokens, err := h.tokens.ListActive(r.Context(), userID)
	if err != nil {
		writeTokenServiceError(w, "Failed to list tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.CredentialSummary{"tokens": tokens})
}

// Revoke はリクエストに使ったトークン、またはtokenIdで指定したトークンを失効させる。
// POST /auth/revoke
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req revokeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		if errors.Is(err, errInvalidTokenID) {
			writeErrorMessage(w, http.StatusBadRequest, "Invalid tokenId")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var revoked bool
	if req.TokenID != "" {
		revoked, err = h.tokens.RevokeByID(r.Context(), string(req.TokenID), userID)
	} else {
		token, _ := middleware.BearerTokenFromContext(r.Context())
		revoked, err = h.tokens.Revoke(r.Context(), token, userID)
	}
	if err != nil {
		writeTokenServiceError(w, "Failed to revoke token", err)
		return
	}
	if !revoked {
		writeErrorMessage(w, http.StatusNotFound, "Token not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Token revoked successfully"})
}

// RevokeAll はユーザーの有効なトークンを全て失効させる。
// POST /auth/revoke-all
func (h *AuthHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	n, err := h.tokens.RevokeAll(r.Context(), userID)
	if err != nil {
		writeTokenServiceError(w, "Failed to revoke tokens", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "All tokens revoked successfully",
		"revoked": n,
	})
}

// writeTokenServiceError はトークン管理の失敗を{"error": message}形式の500で返す。
// 原因はログにのみ出力する。
func writeTokenServiceError(w http.ResponseWriter, message string, err error) {
	slog.Error("token management failed",
		slog.String("operation", message),
		slog.String("error", err.Error()),
	)
	writeErrorMessage(w, http.StatusInternalServerError, message)
}
