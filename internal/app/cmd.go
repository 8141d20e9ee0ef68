package app

import "fmt"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバー（/auth, /me, /subscriptions, /games）を起動する。
	CommandServe Command = "serve"
	// CommandWorker はGoogleカレンダー同期ワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中プロセスの /health を叩いて終了する。
	// distrolessイメージにはcurlがないため、Dockerのヘルスチェックから使う。
	CommandHealthcheck Command = "healthcheck"
)

// Usage はサブコマンド一覧。
const Usage = "usage: gambit [serve|worker|migrate|healthcheck]"

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServe。2つ目以降の引数は無視する。
// 知らないサブコマンドはタイプミスをそのまま起動してしまわないようエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return "", fmt.Errorf("unknown command %q\n%s", args[0], Usage)
	}
	return cmd, nil
}
