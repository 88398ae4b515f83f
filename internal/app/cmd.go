package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はHTTPサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はリモートメディアのプローブワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandImport はシードファイルを取り込む。
	CommandImport Command = "import"
	// CommandResetUser はユーザーのUUIDを再発行し、発行済みURLを無効化する。
	CommandResetUser Command = "reset-user"
	// CommandFeedLink はユーザーのプレミアムフィードURLを表示する。
	CommandFeedLink Command = "feed-link"
	// CommandValidate は生成済みフィードをRSSパーサーで検証する。
	CommandValidate Command = "validate"

	// commandHelp はcobraが自動で追加するhelpサブコマンド。
	commandHelp Command = "help"
)

// needsConfig は環境変数の設定読み込みが必要なコマンドかを返す。
// healthcheckとvalidateはDBにも秘密鍵にも触れない。
func needsConfig(cmd Command) bool {
	switch cmd {
	case CommandHealthcheck, CommandValidate, commandHelp:
		return false
	default:
		return true
	}
}
