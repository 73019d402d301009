package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/director"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// Generator は台本とパネルの一覧から吹き出しを割り当てます。
type Generator struct {
	text    ai.TextGenerator
	prompts prompts.PromptBuilder
	styler  *director.BalloonStyler
}

// New は Generator を初期化します。
func New(text ai.TextGenerator, pb prompts.PromptBuilder, styler *director.BalloonStyler) *Generator {
	if styler == nil {
		styler = director.NewBalloonStyler()
	}
	return &Generator{text: text, prompts: pb, styler: styler}
}

type response struct {
	Balloons map[string][]domain.Balloon `json:"balloons"`
}

// Assign は 1 回の推論で全パネルの吹き出しを求めます。
// すでに吹き出しを持つパネルは変更せず、対応のないパネルには空のリストを設定します。エラーは返しません。
func (g *Generator) Assign(ctx context.Context, script string, panels domain.Panels) domain.Panels {
	start := time.Now()
	logger := slog.With("stage", "balloons")
	out := panels.Clone()

	var lines []prompts.PanelLine
	for _, p := range out {
		if len(p.Balloons) > 0 {
			continue
		}
		lines = append(lines, prompts.PanelLine{
			ID:               p.ID,
			PageNumber:       p.PageNumber,
			Characters:       p.Characters,
			SceneDescription: p.SceneDescription,
		})
	}

	assigned := g.generate(ctx, logger, script, lines)

	mapped := 0
	for i, p := range out {
		if len(p.Balloons) > 0 {
			out[i].Balloons = g.styler.Normalize(p.Balloons)
			continue
		}
		balloons := g.styler.Normalize(assigned[p.ID])
		if len(balloons) > 0 {
			mapped++
		}
		out[i].Balloons = balloons
	}

	logger.InfoContext(ctx, "吹き出しの割り当てが完了しました",
		"panels", len(lines),
		"mapped", mapped,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return out
}

func (g *Generator) generate(ctx context.Context, logger *slog.Logger, script string, lines []prompts.PanelLine) map[string][]domain.Balloon {
	if len(lines) == 0 || g.text == nil {
		return nil
	}
	prompt, err := g.prompts.Build(prompts.ModeDialogue, prompts.TemplateData{
		InputText: strings.TrimSpace(script),
		Panels:    lines,
	})
	if err != nil {
		logger.WarnContext(ctx, "台詞プロンプトの構築に失敗しました", "error", err)
		return nil
	}
	raw, err := g.text.Generate(ctx, prompt, "")
	if err != nil {
		logger.WarnContext(ctx, "台詞の生成に失敗したため吹き出しなしで続行します", "error", err)
		return nil
	}
	var res response
	if err := parser.DecodeJSON(raw, &res); err != nil {
		logger.WarnContext(ctx, "台詞の応答を解析できなかったため吹き出しなしで続行します", "error", err)
		return nil
	}
	return res.Balloons
}
