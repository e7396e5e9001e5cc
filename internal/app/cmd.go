package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSeed はデモ用データを投入することを示す。
	CommandSeed Command = "seed"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

const defaultServerPort = "8080"

// newRootCommand はfonomedのコマンドツリーを組み立てる。
// サブコマンドを省略した場合はserveとして動く。未知のサブコマンドはエラーにする。
// healthcheckは設定読み込みを経由せずhealthcheck関数を直接呼ぶ。
func newRootCommand(w io.Writer, run func(Command) error, healthcheck func(port string) error) *cobra.Command {
	root := &cobra.Command{
		Use:           "fonomed",
		Short:         "言語聴覚療法クリニック向けのAPIサーバーとワーカー",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return run(CommandServe)
		},
	}
	root.SetOut(w)
	root.SetErr(w)
	root.CompletionOptions.DisableDefaultCmd = true

	subcommands := []struct {
		cmd   Command
		short string
	}{
		{CommandServe, "APIサーバーを起動する（期限切れセッションの掃除を含む）"},
		{CommandWorker, "期限切れセッションの定期掃除だけを行う"},
		{CommandMigrate, "データベースマイグレーションを適用する"},
		{CommandSeed, "デモ用のアカウントと練習課題を投入する"},
	}
	for _, sc := range subcommands {
		root.AddCommand(&cobra.Command{
			Use:   string(sc.cmd),
			Short: sc.short,
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return run(sc.cmd)
			},
		})
	}

	healthcheckCmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "ローカルのAPIサーバーの/healthを確認する",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			port, err := c.Flags().GetString("port")
			if err != nil {
				return err
			}
			return healthcheck(port)
		},
	}
	healthcheckCmd.Flags().String("port", envServerPort(), "確認対象のポート（既定はSERVER_PORT）")
	root.AddCommand(healthcheckCmd)

	return root
}

func envServerPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return defaultServerPort
}
