package auth

import (
	"errors"
	"fmt"
)

// ExternalAuthStage は外部認証フローのどの段階で失敗したかを表す。
type ExternalAuthStage string

const (
	// StageCode は認可コードが渡されなかった場合。
	StageCode ExternalAuthStage = "code"
	// StageTokenExchange は認可コードのトークン交換に失敗した場合。
	StageTokenExchange ExternalAuthStage = "token_exchange"
	// StageProfile はユーザー情報の取得に失敗した場合。
	StageProfile ExternalAuthStage = "profile"
)

// ExternalAuthError はIdPとのやり取りの失敗を表す。
// Error()はIdPの応答内容を含まない。詳細はUnwrapで取り出してログにのみ出力する。
type ExternalAuthError struct {
	Stage ExternalAuthStage
	Err   error
}

// Error はerrorインターフェースを実装する。
func (e *ExternalAuthError) Error() string {
	return fmt.Sprintf("external authentication failed at %s", e.Stage)
}

// Unwrap は原因エラーを返す。
func (e *ExternalAuthError) Unwrap() error {
	return e.Err
}

func externalAuthError(stage ExternalAuthStage, err error) *ExternalAuthError {
	return &ExternalAuthError{Stage: stage, Err: err}
}

var (
	// ErrUnauthenticated はAuthorizationヘッダーが無い、または形式が不正な場合のエラー。
	ErrUnauthenticated = errors.New("token not provided")
	// ErrInvalidCredential はトークンが未知、失効済み、または所有者が無効な場合のエラー。
	ErrInvalidCredential = errors.New("invalid token")
	// ErrPrincipalInactive は外部認証には成功したがユーザーが無効化されている場合のエラー。
	ErrPrincipalInactive = errors.New("account is deactivated")
)
