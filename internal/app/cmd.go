package app

import "fmt"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandCleanup はタスクを一括削除する。ユーザーIDを渡すとそのユーザーのみ。
	CommandCleanup Command = "cleanup"
	// CommandDeactivateUser はユーザーを無効化する。
	CommandDeactivateUser Command = "deactivate-user"
	// CommandActivateUser は無効化したユーザーを有効に戻す。
	CommandActivateUser Command = "activate-user"
	// CommandRevokeTokens はユーザーの有効なトークンを全て失効させる。
	CommandRevokeTokens Command = "revoke-tokens"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandMigrate, CommandHealthcheck, CommandCleanup,
		CommandDeactivateUser, CommandActivateUser, CommandRevokeTokens:
		return cmd
	default:
		return CommandServe
	}
}

// requiresUserID はユーザーIDの引数が必須のコマンドかどうかを返す。
func (c Command) requiresUserID() bool {
	switch c {
	case CommandDeactivateUser, CommandActivateUser, CommandRevokeTokens:
		return true
	}
	return false
}

// userIDArg はサブコマンドに続くユーザーIDを返す。
// 必須のコマンドで指定がない場合はエラーを返す。
func userIDArg(cmd Command, args []string) (string, error) {
	var userID string
	if len(args) > 1 {
		userID = args[1]
	}
	if userID == "" && cmd.requiresUserID() {
		return "", fmt.Errorf("usage: %s <user-id>", cmd)
	}
	return userID, nil
}
