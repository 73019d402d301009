package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/canon"
	"github.com/shouni/go-comic-kit/pkg/composer"
	"github.com/shouni/go-comic-kit/pkg/continuity"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// ErrPanelNotFound は選択的再生成の対象パネルが存在しないことを表します。
var ErrPanelNotFound = errors.New("対象のパネルが見つかりません")

// Input は画像生成ステージの入力です。
type Input struct {
	ProjectID     string
	Panels        domain.Panels
	Continuity    domain.ContinuityState
	WorldSummary  string
	PanelPurposes map[string]string
	// TargetPanelID が空でなければ、そのパネルだけを生成します。
	TargetPanelID string
	// ReferenceImages はすべてのパネルに渡す明示的な参照画像です。
	ReferenceImages []string
}

// Result は画像生成ステージの結果です。Panels は入力と同じ順序です。
type Result struct {
	Panels     domain.Panels
	Continuity domain.ContinuityState
	Generated  []string
	Failed     []string
}

// Orchestrator はパネルごとに文脈画像を集め、プロンプトを合成して生成・編集を振り分けます。
// パネル N の連続性の更新が終わるまでパネル N+1 のプロンプトは作りません。
type Orchestrator struct {
	images      ai.ImageGenerator
	composer    *composer.Composer
	supervisor  *continuity.Supervisor
	characters  *canon.EntityRegistry
	sceneries   *canon.EntityRegistry
	limiter     *rate.Limiter
	baseURL     string
	newRevision func() string
}

// New は Orchestrator を初期化します。limiter が nil の場合は待機しません。
func New(
	images ai.ImageGenerator,
	comp *composer.Composer,
	sup *continuity.Supervisor,
	characters, sceneries *canon.EntityRegistry,
	limiter *rate.Limiter,
	baseURL string,
) (*Orchestrator, error) {
	if images == nil {
		return nil, fmt.Errorf("ImageGenerator は必須です")
	}
	if comp == nil {
		return nil, fmt.Errorf("Composer は必須です")
	}
	if sup == nil {
		return nil, fmt.Errorf("Supervisor は必須です")
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Orchestrator{
		images:      images,
		composer:    comp,
		supervisor:  sup,
		characters:  characters,
		sceneries:   sceneries,
		limiter:     limiter,
		baseURL:     baseURL,
		newRevision: func() string { return uuid.NewString()[:8] },
	}, nil
}

// Run は対象パネルをページ・順序どおりに 1 枚ずつ生成します。
// 選択的再生成では対象以外のパネルに一切触れず、対象の失敗はエラーとして返します。
func (o *Orchestrator) Run(ctx context.Context, in Input) (Result, error) {
	start := time.Now()
	logger := slog.With("stage", "generate", "project_id", in.ProjectID)

	res := Result{
		Panels:     in.Panels.Clone(),
		Continuity: in.Continuity.Clone(),
	}
	selective := in.TargetPanelID != ""
	if selective && res.Panels.IndexOf(in.TargetPanelID) < 0 {
		return res, fmt.Errorf("%w: %s", ErrPanelNotFound, in.TargetPanelID)
	}

	order := processingOrder(res.Panels)
	if !selective {
		order = order[:lastPending(res.Panels, order)+1]
	}
	for _, i := range order {
		p := res.Panels[i]
		if selective && p.ID != in.TargetPanelID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		// 生成済みのパネルも連続性だけは進めて、後続のパネルへ引き継ぐ
		if !selective && !p.NeedsGeneration() {
			res.Continuity = o.supervisor.Update(ctx, res.Continuity, p)
			continue
		}

		updated, err := o.generatePanel(ctx, in, p, res.Continuity)
		if err != nil {
			if selective {
				return res, fmt.Errorf("パネル %s の生成に失敗しました: %w", p.ID, err)
			}
			logger.WarnContext(ctx, "パネルの生成に失敗しました", "panel_id", p.ID, "page", p.PageNumber, "error", err)
			res.Failed = append(res.Failed, p.ID)
		} else {
			res.Panels[i] = updated
			res.Generated = append(res.Generated, p.ID)
		}

		res.Continuity = o.supervisor.Update(ctx, res.Continuity, p)
	}

	if len(res.Generated) == 0 && len(res.Failed) > 0 {
		return res, fmt.Errorf("すべてのパネル生成に失敗しました (%d 件)", len(res.Failed))
	}

	logger.InfoContext(ctx, "画像生成が完了しました",
		"generated", len(res.Generated),
		"failed", len(res.Failed),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

func (o *Orchestrator) generatePanel(ctx context.Context, in Input, p domain.Panel, state domain.ContinuityState) (domain.Panel, error) {
	logger := slog.With("panel_id", p.ID, "page", p.PageNumber)

	compInput := composer.Input{
		Panel:        p,
		Continuity:   state,
		WorldSummary: in.WorldSummary,
		PanelPurpose: in.PanelPurposes[p.Key()],
	}
	layers := o.composer.Layers(compInput)
	prompt := o.composer.Compose(ctx, compInput)
	contextImages := o.ContextImages(p, in.ReferenceImages)
	key := asset.PanelImageKey(in.ProjectID, p.ID, o.newRevision())

	if err := o.limiter.Wait(ctx); err != nil {
		return p, fmt.Errorf("リミッター待機中にエラーが発生しました: %w", err)
	}

	start := time.Now()
	var (
		loc string
		err error
	)
	if source := initiatingImage(p); source != "" {
		logger.InfoContext(ctx, "パネルを編集します", "source", source, "context_images", len(contextImages))
		loc, err = o.images.Edit(ctx, ai.EditRequest{
			SourceImage:    o.resolve(source),
			Prompt:         prompt,
			NegativePrompt: prompts.PanelNegativePrompt,
			AspectRatio:    layers.AspectRatio,
			ContextImages:  contextImages,
			Seed:           domain.PanelSeed(p),
			OutputKey:      key,
		})
	} else {
		logger.InfoContext(ctx, "パネルを生成します", "context_images", len(contextImages))
		loc, err = o.images.Generate(ctx, ai.GenerateRequest{
			Prompt:         prompt,
			NegativePrompt: prompts.PanelNegativePrompt,
			StyleHint:      layers.Style,
			AspectRatio:    layers.AspectRatio,
			ContextImages:  contextImages,
			Seed:           domain.PanelSeed(p),
			OutputKey:      key,
		})
	}
	if err != nil {
		return p, err
	}

	logger.InfoContext(ctx, "パネルの生成が完了しました", "duration", time.Since(start).Round(time.Millisecond))
	p.ImageURL = loc
	p.Prompt = prompt
	p.Status = domain.PanelGenerated
	return p, nil
}

// ContextImages はキャラクター、背景、明示的な参照画像を重複なく集めます。
func (o *Orchestrator) ContextImages(p domain.Panel, explicit []string) []string {
	var refs []string
	if o.characters != nil {
		for _, name := range p.Characters {
			refs = append(refs, o.characters.Images(name)...)
		}
	}
	if o.sceneries != nil && strings.TrimSpace(p.Scenery) != "" {
		refs = append(refs, o.sceneries.Images(p.Scenery)...)
	}
	refs = append(refs, p.ReferenceImageURL)
	refs = append(refs, explicit...)

	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		r = o.resolve(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (o *Orchestrator) resolve(locator string) string {
	return parser.ResolveLocator(o.baseURL, locator)
}

// initiatingImage は編集の起点となる画像を返します。
// 明示的な current_image_url を優先し、編集中のパネルは既存の画像を起点にします。
func initiatingImage(p domain.Panel) string {
	if s := strings.TrimSpace(p.CurrentImageURL); s != "" {
		return s
	}
	if p.Status == domain.PanelEditing {
		return strings.TrimSpace(p.ImageURL)
	}
	return ""
}

// processingOrder はページ番号・ページ内順序で並べたインデックスを返します。
// lastPending は order の中で最後に生成が必要なパネルの位置を返します。なければ -1 です。
func lastPending(panels domain.Panels, order []int) int {
	for k := len(order) - 1; k >= 0; k-- {
		if panels[order[k]].NeedsGeneration() {
			return k
		}
	}
	return -1
}

func processingOrder(panels domain.Panels) []int {
	idx := make([]int, len(panels))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		if panels[a].PageNumber != panels[b].PageNumber {
			return panels[a].PageNumber - panels[b].PageNumber
		}
		return panels[a].OrderInPage - panels[b].OrderInPage
	})
	return idx
}
