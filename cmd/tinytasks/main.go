// Command tinytasks はTinyTasks APIサーバーと保守用サブコマンドを提供する。
//
//	tinytasks [serve]                 APIサーバーを起動する
//	tinytasks migrate                 マイグレーションを適用する
//	tinytasks healthcheck             /healthを確認する（Dockerヘルスチェック用）
//	tinytasks cleanup [user-id]       タスクを一括削除する
//	tinytasks deactivate-user <id>    ユーザーを無効化する
//	tinytasks activate-user <id>      ユーザーを有効に戻す
//	tinytasks revoke-tokens <user-id> ユーザーのトークンを全て失効させる
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/tinytasks/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tinytasks: %v\n", err)
		os.Exit(1)
	}
}
