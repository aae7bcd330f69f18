package auth

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// ClientType はログインを開始したクライアントの種別を表す。
type ClientType string

const (
	ClientMacOS ClientType = "macos"
	ClientMCP   ClientType = "mcp"
	ClientWeb   ClientType = "web"
)

// ParseClientType は文字列からクライアント種別を解析する。
// 未知の値や空文字列はwebとして扱う。
func ParseClientType(s string) ClientType {
	switch ClientType(s) {
	case ClientMacOS, ClientMCP:
		return ClientType(s)
	}
	return ClientWeb
}

// LoginState はOAuthのstateパラメータに載せるログイン開始時の情報。
type LoginState struct {
	ClientType        ClientType `json:"client_type"`
	CustomRedirectURI *string    `json:"custom_redirect_uri,omitempty"`
	Timestamp         int64      `json:"timestamp"`
}

// NewLoginState は現在時刻付きのLoginStateを生成する。
func NewLoginState(clientType ClientType, redirectURI string, now time.Time) LoginState {
	st := LoginState{
		ClientType: ParseClientType(string(clientType)),
		Timestamp:  now.UnixMilli(),
	}
	if redirectURI != "" {
		st.CustomRedirectURI = &redirectURI
	}
	return st
}

// EncodeLoginState はLoginStateをJSONにし、標準アルファベットのbase64で符号化する。
func EncodeLoginState(st LoginState) string {
	// 固定構造体のためMarshalは失敗しない
	b, _ := json.Marshal(st)
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeLoginState はstateパラメータを復号する。
// 欠落・不正なbase64・不正なJSONの場合もエラーにせず、webクライアントとして扱う。
func DecodeLoginState(raw string) LoginState {
	fallback := LoginState{ClientType: ClientWeb}
	if raw == "" {
		return fallback
	}

	var decoded []byte
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(raw)
		if err == nil {
			decoded = b
			break
		}
	}
	if decoded == nil {
		return fallback
	}

	var st LoginState
	if err := json.Unmarshal(decoded, &st); err != nil {
		return fallback
	}
	st.ClientType = ParseClientType(string(st.ClientType))
	if st.CustomRedirectURI != nil && *st.CustomRedirectURI == "" {
		st.CustomRedirectURI = nil
	}
	return st
}
