package cmd

import (
	"fmt"
	"os"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// jobOptions は CLI フラグから渡されるジョブのパラメータなのだ。
type jobOptions struct {
	RequestFile  string   // --request: YAML か JSON のジョブリクエスト
	ProjectID    string   // --project
	Sources      []string // --source
	MaxPages     int      // --max-pages
	MaxPanels    int      // --max-panels
	LayoutStyle  string   // --layout
	PlanOnly     bool     // --plan-only
	StyleGuide   string   // --style
	Instructions string   // --instructions
	OutputFile   string   // --output-file: 終端メッセージの保存先（空なら標準出力なのだ）
}

var opts jobOptions

// addAppFlags は、すべてのコマンドに共通するジョブ指定のフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVarP(&opts.RequestFile, "request", "r", "", "ジョブリクエストのファイル（YAML/JSON、ローカル or gs://...）なのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.ProjectID, "project", "p", "", "プロジェクトIDなのだ。リクエストファイルの値より優先するのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.OutputFile, "output-file", "o", "", "終端メッセージ（JSON）の保存パスなのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Instructions, "instructions", "", "再生成時の変更指示なのだ。")
}

// preRunAppE は、コマンド実行前に環境変数などの必須チェックを行うのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}
	return nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	clibase.Execute(
		"comic-kit",
		addAppFlags,
		preRunAppE,
		generateCmd,
		regenerateCmd,
		workerCmd,
		serveCmd,
	)
}

// applyOptions はフラグで指定された値をリクエストに上書きするのだ。
func applyOptions(req *domain.JobRequest) {
	if opts.ProjectID != "" {
		req.ProjectID = opts.ProjectID
	}
	if len(opts.Sources) > 0 {
		req.Sources = opts.Sources
	}
	if opts.MaxPages > 0 {
		req.MaxPages = opts.MaxPages
	}
	if opts.MaxPanels > 0 {
		req.MaxPanels = opts.MaxPanels
	}
	if opts.LayoutStyle != "" {
		req.LayoutStyle = domain.LayoutStyle(opts.LayoutStyle)
	}
	if opts.PlanOnly {
		req.PlanOnly = true
	}
	if opts.StyleGuide != "" {
		req.StyleGuide = opts.StyleGuide
	}
	if opts.Instructions != "" {
		req.Instructions = opts.Instructions
	}
}
