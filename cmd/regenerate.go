package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

var (
	panelID    string
	pageNumber int
)

// regenerateCmd は、既存の結果の一部だけを作り直すのだ。
var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "パネル 1 枚やページ統合だけを作り直すのだ。",
}

var regeneratePanelCmd = &cobra.Command{
	Use:   "panel",
	Short: "指定したパネルだけを再生成するのだ。",
	Long: `--request で渡したパネル一覧のうち、--panel-id のパネルだけを再生成するのだ。
--instructions があれば既存の画像を起点に編集するのだよ。ほかのパネルには一切触れないのだ。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.RequestFile == "" {
			return fmt.Errorf("パネル一覧を含むリクエストファイル（--request）を指定してほしいのだ")
		}
		return runJob(cmd, domain.ActionRegeneratePanel, func(req *domain.JobRequest) {
			if panelID != "" {
				req.PanelID = panelID
			}
		})
	},
}

var regenerateMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "生成済みのパネルからページ統合だけをやり直すのだ。",
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.RequestFile == "" {
			return fmt.Errorf("パネル一覧を含むリクエストファイル（--request）を指定してほしいのだ")
		}
		return runJob(cmd, domain.ActionRegenerateMerge, func(req *domain.JobRequest) {
			if pageNumber > 0 {
				req.PageNumber = pageNumber
			}
		})
	},
}

func init() {
	regeneratePanelCmd.Flags().StringVar(&panelID, "panel-id", "", "再生成するパネルの ID なのだ。")
	regenerateMergeCmd.Flags().IntVar(&pageNumber, "page", 0, "統合し直すページ番号なのだ（省略時は全ページ）。")
	regenerateCmd.AddCommand(regeneratePanelCmd, regenerateMergeCmd)
}
