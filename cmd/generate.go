package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// generateCmd は、台本から漫画のパネルと統合ページを生成するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "台本から漫画のパネルとページを生成するのだ。",
	Long: `ソース（台本テキストや参照画像）を取り込み、ストーリー理解、世界観の構築、コマ割り、
パネル画像の生成、吹き出しの割り当て、ページ統合までを一気に実行するのだ。
--plan-only を付けるとコマ割りまでで止まるのだよ。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, domain.ActionGenerate, nil)
	},
}

func init() {
	generateCmd.Flags().StringSliceVarP(&opts.Sources, "source", "s", nil, "台本テキストや参照画像のパス（複数可、ローカル or gs://...）なのだ。")
	generateCmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "生成する最大ページ数なのだ（既定は 3）。")
	generateCmd.Flags().IntVar(&opts.MaxPanels, "max-panels", 0, "計画するパネル数なのだ（既定はページ数の 2 倍）。")
	generateCmd.Flags().StringVarP(&opts.LayoutStyle, "layout", "l", "", "コマ割りの傾向（dynamic / vertical / grid）なのだ。")
	generateCmd.Flags().BoolVar(&opts.PlanOnly, "plan-only", false, "コマ割りまでで止めるのだ。")
	generateCmd.Flags().StringVar(&opts.StyleGuide, "style", "", "画風の指定なのだ。")
}
