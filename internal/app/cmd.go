package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーと分類エンジンの準備処理を起動する。
	CommandServe Command = "serve"
	// CommandWorker はログインイベントの保持期間ジョブを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認して終了する。
	// distrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServe。2番目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	name := strings.ToLower(strings.TrimSpace(args[0]))
	for _, c := range commands {
		if string(c) == name {
			return c, nil
		}
	}

	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return "", fmt.Errorf("unknown command %q (want one of %s)", args[0], strings.Join(names, ", "))
}
