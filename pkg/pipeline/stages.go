package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/merger"
	"github.com/shouni/go-comic-kit/pkg/planner"
	"github.com/shouni/go-comic-kit/pkg/story"
	"github.com/shouni/go-comic-kit/pkg/world"
)

// global_context で受け付けるキーです。
const (
	globalWorldSummary  = "world_summary"
	globalPageSummaries = "page_summaries"
)

func (p *Pipeline) ingest(ctx context.Context, st *runState) error {
	res, err := p.c.Ingestor.Ingest(ctx, st.req.Sources)
	if err != nil {
		return err
	}
	st.script = res.Script
	st.sourceImages = res.Images
	return nil
}

func (p *Pipeline) understand(ctx context.Context, st *runState) error {
	if st.script.IsBlank() {
		st.understanding = story.Understanding{PageSummaries: map[int]string{}, PanelPurposes: map[string]string{}}
		return nil
	}
	u, err := p.c.Story.Analyze(ctx, st.script)
	if err != nil {
		return err
	}
	st.understanding = u
	st.script = u.Pages
	return nil
}

func (p *Pipeline) buildWorld(ctx context.Context, st *runState) error {
	summary := st.understanding.Summary()
	if _, err := p.c.World.Build(ctx, world.Input{
		Summary:      summary,
		Characters:   st.req.Characters,
		Sceneries:    st.req.Sceneries,
		StyleGuide:   st.req.StyleGuide,
		SourceImages: st.sourceImages,
	}); err != nil {
		return err
	}
	st.worldSummary = p.c.World.Describe(summary)
	return nil
}

func (p *Pipeline) plan(ctx context.Context, st *runState) error {
	req := st.req
	if st.script.IsBlank() && len(req.Panels) == 0 && !req.PlanOnly {
		return ErrEmptyScript
	}
	panels, err := p.c.Planner.Plan(ctx, planner.Input{
		WorldSummary:   st.worldSummary,
		Script:         st.script,
		Existing:       req.Panels,
		MaxPages:       req.MaxPages,
		RequiredPanels: req.RequiredPanelCount(),
		LayoutStyle:    req.LayoutStyle,
		TargetPage:     req.TargetPage,
		KnownNames:     p.c.Canon.CharacterNames(),
	})
	if err != nil {
		return err
	}
	if len(panels) == 0 {
		return fmt.Errorf("計画されたパネルが 0 件です")
	}
	st.panels = panels
	return nil
}

func (p *Pipeline) layout(ctx context.Context, st *runState) error {
	panels, assigned := p.c.Layout.Assign(st.panels, st.req.LayoutStyle)
	slog.InfoContext(ctx, "レイアウトを割り当てました", "stage", StageLayout, "assigned", assigned, "panels", len(panels))
	st.panels = panels
	return nil
}

func (p *Pipeline) generate(ctx context.Context, st *runState) error {
	in := generator.Input{
		ProjectID:       st.req.ProjectID,
		Panels:          st.panels,
		Continuity:      domain.NewContinuityState(),
		WorldSummary:    st.worldSummary,
		PanelPurposes:   st.understanding.PanelPurposes,
		ReferenceImages: st.req.ReferenceImages,
	}
	if st.req.Action == domain.ActionRegeneratePanel {
		panels, err := targetPanels(st.req)
		if err != nil {
			return err
		}
		in.Panels = panels
		in.TargetPanelID = st.req.PanelID
		in.Continuity = p.priorContinuity(st.req)
		in.WorldSummary = p.summaryFromContext(st.req)
	}

	res, err := p.c.Generator.Run(ctx, in)
	if err != nil {
		return err
	}
	st.panels = res.Panels
	if len(res.Generated)+len(res.Failed) == 0 {
		// 処理したパネルがなければ前回保存した連続性をそのまま返す
		st.continuity = p.c.Canon.Continuity()
		return nil
	}
	st.continuity = res.Continuity
	if err := p.c.Canon.UpdateContinuity(ctx, res.Continuity); err != nil {
		slog.WarnContext(ctx, "連続性の保存に失敗しました", "stage", StageGenerate, "error", err)
	}
	return nil
}

func (p *Pipeline) balloons(ctx context.Context, st *runState) error {
	st.panels = p.c.Dialogue.Assign(ctx, st.script.Text(), st.panels)
	return nil
}

func (p *Pipeline) merge(ctx context.Context, st *runState) error {
	in := merger.Input{
		ProjectID:     st.req.ProjectID,
		Panels:        st.panels,
		PageSummaries: st.understanding.PageSummaries,
	}
	if st.req.Action == domain.ActionRegenerateMerge {
		st.panels = st.req.Panels.Clone()
		st.continuity = p.priorContinuity(st.req)
		in.Panels = st.panels
		in.PageSummaries = pageSummariesFromContext(st.req)
		in.Instructions = st.req.Instructions
		in.Existing = st.req.MergedPages
		if page := mergeTarget(st.req); page > 0 {
			if len(st.panels.OnPage(page)) == 0 {
				return fmt.Errorf("%w: ページ %d にパネルがありません", ErrPanelNotFound, page)
			}
			in.Pages = []int{page}
		}
	}

	merged, err := p.c.Merger.Merge(ctx, in)
	if err != nil {
		return err
	}
	st.merged = merged
	return nil
}

// targetPanels はリクエストの上書きを対象パネルに適用したパネル列を返します。
// 指示があれば編集として、なければ新規生成として扱います。
func targetPanels(req domain.JobRequest) (domain.Panels, error) {
	panels := req.Panels.Clone()
	i := panels.IndexOf(req.PanelID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPanelNotFound, req.PanelID)
	}
	t := &panels[i]
	if s := strings.TrimSpace(req.Prompt); s != "" {
		t.Prompt = s
	}
	if s := strings.TrimSpace(req.SceneDescription); s != "" {
		t.SceneDescription = s
	}
	if req.Balloons != nil {
		t.Balloons = domain.Panel{Balloons: req.Balloons}.Clone().Balloons
	}
	if s := strings.TrimSpace(req.CurrentImageURL); s != "" {
		t.CurrentImageURL = s
	}
	if s := strings.TrimSpace(req.ReferenceImageURL); s != "" {
		t.ReferenceImageURL = s
	}
	if s := strings.TrimSpace(req.Instructions); s != "" {
		t.Instructions = s
		t.Status = domain.PanelEditing
	} else {
		t.Status = domain.PanelPending
	}
	return panels, nil
}

// priorContinuity はリクエストの連続性、なければ正典に保存された前回の連続性を返します。
func (p *Pipeline) priorContinuity(req domain.JobRequest) domain.ContinuityState {
	if req.ContinuityState != nil {
		return req.ContinuityState.Clone()
	}
	return p.c.Canon.Continuity()
}

func (p *Pipeline) summaryFromContext(req domain.JobRequest) string {
	if s, ok := req.GlobalContext[globalWorldSummary].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return p.c.World.Describe("")
}

func pageSummariesFromContext(req domain.JobRequest) map[int]string {
	out := make(map[int]string)
	raw, ok := req.GlobalContext[globalPageSummaries].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.ToLower(k), "page")))
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[n] = s
		}
	}
	return out
}

func mergeTarget(req domain.JobRequest) int {
	if req.PageNumber > 0 {
		return req.PageNumber
	}
	return req.TargetPage
}
