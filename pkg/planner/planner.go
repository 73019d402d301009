package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

const defaultBatchSize = 10

// Input はパネル計画への入力です。
type Input struct {
	WorldSummary   string
	Script         domain.Script
	Existing       domain.Panels
	MaxPages       int
	RequiredPanels int
	LayoutStyle    domain.LayoutStyle
	// TargetPage が正の値の場合、そのページだけを計画し直します。
	TargetPage int
	KnownNames []string
}

// Planner は台本をページとパネル数の制約のもとでパネル列に分解します。
type Planner struct {
	text      ai.TextGenerator
	prompts   prompts.PromptBuilder
	batchSize int
	newID     func() string
}

// New は Planner を初期化します。batchSize が 0 以下なら台本 10 ページ単位で分割します。
func New(text ai.TextGenerator, pb prompts.PromptBuilder, batchSize int) *Planner {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Planner{
		text:      text,
		prompts:   pb,
		batchSize: batchSize,
		newID:     func() string { return uuid.NewString() },
	}
}

// Plan はパネル列を返します。推論がすべて失敗しても仮パネルを返し、空の結果にはしません。
func (p *Planner) Plan(ctx context.Context, in Input) (domain.Panels, error) {
	start := time.Now()
	logger := slog.With("stage", "plan")
	in = normalizeInput(in)

	if in.TargetPage > 0 {
		panels, err := p.replanPage(ctx, in)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "ページを再計画しました", "page", in.TargetPage, "panels", len(panels), "duration", time.Since(start).Round(time.Millisecond))
		return panels, nil
	}

	if isComplete(in.Existing, in.RequiredPanels) {
		logger.InfoContext(ctx, "既存のパネルが揃っているため計画をスキップします", "panels", len(in.Existing))
		out := in.Existing.Clone()
		out.SortByPosition()
		return out, nil
	}

	var planned domain.Panels
	if in.Script.IsBlank() {
		logger.WarnContext(ctx, "台本が空のため仮パネルを生成します", "required", in.RequiredPanels)
		planned = p.placeholders(1, in.MaxPages, in.RequiredPanels)
	} else {
		var err error
		planned, err = p.planBatches(ctx, logger, in)
		if err != nil {
			return nil, err
		}
	}

	planned = p.finalize(planned, in.Existing)
	logger.InfoContext(ctx, "パネル計画が完了しました",
		"panels", len(planned),
		"pages", len(planned.PageNumbers()),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return planned, nil
}

func normalizeInput(in Input) Input {
	if in.MaxPages <= 0 {
		in.MaxPages = domain.DefaultMaxPages
	}
	if in.RequiredPanels <= 0 {
		in.RequiredPanels = domain.JobRequest{MaxPages: in.MaxPages}.RequiredPanelCount()
	}
	if in.LayoutStyle == "" {
		in.LayoutStyle = domain.DefaultLayoutStyle
	}
	in.Script = in.Script.Ordered()
	return in
}

// isComplete は既存パネルが仮パネルを含まず、必要数を満たしているかを判定します。
func isComplete(existing domain.Panels, required int) bool {
	if len(existing) == 0 || len(existing) < required {
		return false
	}
	for _, panel := range existing {
		if panel.IsPlaceholder() {
			return false
		}
	}
	return true
}

// replanPage は対象ページ以外のパネルを一切変更せず、対象ページのパネルだけを作り直します。
func (p *Planner) replanPage(ctx context.Context, in Input) (domain.Panels, error) {
	var kept, old domain.Panels
	for _, panel := range in.Existing {
		if panel.PageNumber == in.TargetPage {
			old = append(old, panel)
			continue
		}
		kept = append(kept, panel.Clone())
	}

	count := len(old)
	if count == 0 {
		count = max(1, in.RequiredPanels/max(1, in.MaxPages))
	}

	var planned domain.Panels
	if in.Script.IsBlank() {
		planned = p.placeholders(in.TargetPage, in.TargetPage, count)
	} else {
		b := batch{pageStart: in.TargetPage, pageEnd: in.TargetPage, panels: count, script: in.Script}
		var err error
		planned, err = p.planBatch(ctx, in, b, "")
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.WarnContext(ctx, "ページの再計画に失敗したため仮パネルを生成します", "page", in.TargetPage, "error", err)
			planned = p.placeholders(in.TargetPage, in.TargetPage, count)
		}
	}

	planned = p.finalize(planned, old)
	out := append(kept, planned...)
	out.SortByPosition()
	return out, nil
}

type plannedPanel struct {
	PageNumber       parser.FlexInt     `json:"page_number"`
	OrderInPage      parser.FlexInt     `json:"order_in_page"`
	SceneDescription string             `json:"scene_description"`
	Characters       parser.FlexStrings `json:"characters"`
	Scenery          string             `json:"scenery"`
	Script           string             `json:"script"`
}

type planResponse struct {
	Panels []plannedPanel `json:"panels"`
}

// planBatch は 1 回の推論で batch のページ範囲に収まるパネル列を作ります。
func (p *Planner) planBatch(ctx context.Context, in Input, b batch, carry string) (domain.Panels, error) {
	prompt, err := p.prompts.Build(prompts.ModePlanner, prompts.TemplateData{
		InputText:    b.script.Text(),
		WorldSummary: in.WorldSummary,
		CarryForward: carry,
		KnownNames:   in.KnownNames,
		PageStart:    b.pageStart,
		PageEnd:      b.pageEnd,
		PanelCount:   b.panels,
		LayoutStyle:  string(in.LayoutStyle),
	})
	if err != nil {
		return nil, err
	}

	raw, err := p.text.Generate(ctx, prompt, "")
	if err != nil {
		return nil, fmt.Errorf("パネル計画の推論に失敗しました: %w", err)
	}
	var res planResponse
	if err := parser.DecodeJSON(raw, &res); err != nil {
		return nil, err
	}

	var panels domain.Panels
	for _, pp := range res.Panels {
		desc := strings.TrimSpace(pp.SceneDescription)
		if desc == "" {
			continue
		}
		page := min(max(int(pp.PageNumber), b.pageStart), b.pageEnd)
		panels = append(panels, domain.Panel{
			PageNumber:       page,
			OrderInPage:      int(pp.OrderInPage),
			SceneDescription: desc,
			Characters:       trimAll(pp.Characters),
			Scenery:          strings.TrimSpace(pp.Scenery),
			Script:           strings.TrimSpace(pp.Script),
		})
	}
	if len(panels) == 0 {
		return nil, fmt.Errorf("パネル計画の応答にパネルが含まれていません")
	}
	return panels, nil
}

// finalize はページ内順序を 0 から振り直し、ID と状態を設定し、同じ位置にあった既存パネルのレイアウトを引き継ぎます。
func (p *Planner) finalize(panels, existing domain.Panels) domain.Panels {
	panels.SortByPosition()

	layouts := make(map[[2]int]domain.Layout, len(existing))
	for _, e := range existing {
		if e.Layout.IsAssigned() {
			layouts[[2]int{e.PageNumber, e.OrderInPage}] = e.Layout
		}
	}

	order := make(map[int]int)
	for i := range panels {
		panel := &panels[i]
		panel.OrderInPage = order[panel.PageNumber]
		order[panel.PageNumber]++

		if panel.ID == "" {
			panel.ID = p.newID()
		}
		panel.Status = domain.PanelPending
		if panel.Characters == nil {
			panel.Characters = []string{}
		}
		if panel.Balloons == nil {
			panel.Balloons = []domain.Balloon{}
		}
		if l, ok := layouts[[2]int{panel.PageNumber, panel.OrderInPage}]; ok {
			panel.Layout = l
		}
	}
	return panels
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
