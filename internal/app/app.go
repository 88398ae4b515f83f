package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/hitoshi/rentfree/internal/config"
	"github.com/hitoshi/rentfree/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Init はアプリケーションの初期化を行う。
// カレントディレクトリの.envを読み込んだうえで環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envの読み込み。既存の環境変数は上書きしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. ログレベルを設定値に合わせる
	logger.SetupDefaultLevel(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。サブコマンドの出力とログはwに書き出す。
func Run(w io.Writer, args []string) error {
	root := newRootCommand(w)
	root.SetArgs(args)
	root.SetOut(w)
	root.SetErr(w)
	return root.Execute()
}

// cliState はサブコマンド間で共有する起動時の状態。
type cliState struct {
	logOut io.Writer
	cfg    *config.Config
}

func newRootCommand(w io.Writer) *cobra.Command {
	rt := &cliState{logOut: w}

	root := &cobra.Command{
		Use:           "rentfree",
		Short:         "Personalized podcast and article feeds with premium access",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.prepare(commandOf(cmd))
		},
		// サブコマンドなしはserveとして起動する
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rt.cfg)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the HTTP server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), rt.cfg)
			},
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "Start the remote media probe worker",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorker(cmd.Context(), rt.cfg)
			},
		},
		&cobra.Command{
			Use:   string(CommandMigrate) + " [up|down [N]|version]",
			Short: "Apply, roll back, or inspect database migrations",
			Args:  cobra.MaximumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.OutOrStdout(), rt.cfg, args)
			},
		},
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "Probe the local /health endpoint",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "8080"
				}
				return runHealthcheck(port)
			},
		},
		&cobra.Command{
			Use:   string(CommandImport) + " <seed.json>",
			Short: "Import index pages, media, segments, users, and content from a seed file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runImport(cmd.Context(), cmd.OutOrStdout(), rt.cfg, args[0])
			},
		},
		&cobra.Command{
			Use:   string(CommandResetUser) + " <email>",
			Short: "Rotate a user's identity and invalidate issued premium links",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runResetUser(cmd.Context(), cmd.OutOrStdout(), rt.cfg, args[0])
			},
		},
		&cobra.Command{
			Use:   string(CommandFeedLink) + " <email> <slug>",
			Short: "Print the premium feed URL for a user",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runFeedLink(cmd.Context(), cmd.OutOrStdout(), rt.cfg, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   string(CommandValidate) + " <url|file>",
			Short: "Parse a generated feed and check GUID and enclosure rules",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runValidate(cmd.Context(), cmd.OutOrStdout(), args[0])
			},
		},
	)

	return root
}

// commandOf はcobraのコマンドをCommandに対応付ける。ルートはserve扱い。
func commandOf(cmd *cobra.Command) Command {
	if !cmd.HasParent() {
		return CommandServe
	}
	return Command(cmd.Name())
}

// prepare は設定が必要なコマンドに限り初期化する。
// healthcheck等の軽量サブコマンドではフル初期化をスキップする。
func (rt *cliState) prepare(cmd Command) error {
	if !needsConfig(cmd) {
		logger.SetupDefault(rt.logOut)
		return nil
	}

	cfg, err := Init(rt.logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	rt.cfg = cfg

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)
	return nil
}
