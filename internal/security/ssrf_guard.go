// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は外部URLとして許可するスキーム。
var allowedSchemes = []string{"http", "https"}

// ErrUnsafeURL はURLが許可条件を満たさない場合のエラー。
var ErrUnsafeURL = errors.New("unsafe url")

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// IdPへのトークン交換とユーザー情報取得に使用する。
// safeurlのデフォルト設定により以下がブロックされる:
//   - プライベートIPアドレス (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - ループバックアドレス (127.0.0.0/8, ::1)
//   - リンクローカルアドレス (169.254.0.0/16, fe80::/10)
//
// DNS解決後のIPアドレスもDialerで検証される。
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateRedirectURL はログイン完了後のリダイレクト先として使えるURLかを検証する。
// ホストを問わずhttp/httpsの絶対URLを受け付ける（localhostやプライベートアドレスも含む）。
// 拒否するのは他スキーム、相対URL、ユーザー情報付きURLのみ。
func ValidateRedirectURL(rawURL string) error {
	parsed, err := parseExternalURL(rawURL)
	if err != nil {
		return err
	}
	if parsed.User != nil {
		return fmt.Errorf("%w: userinfo is not allowed", ErrUnsafeURL)
	}
	return nil
}

// NormalizeAvatarURL はIdPから受け取ったアバターURLを検証し、
// http/https以外の場合はnilを返す。
func NormalizeAvatarURL(rawURL string) *string {
	if rawURL == "" {
		return nil
	}
	if _, err := parseExternalURL(rawURL); err != nil {
		return nil
	}
	return &rawURL
}

func parseExternalURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrUnsafeURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}

	if !isAllowedScheme(parsed.Scheme) {
		return nil, fmt.Errorf("%w: disallowed scheme %q", ErrUnsafeURL, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: empty host", ErrUnsafeURL)
	}
	return parsed, nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}
