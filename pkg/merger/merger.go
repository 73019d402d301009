package merger

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// PageAspectRatio は統合ページのアスペクト比です (1024x1536)。
const PageAspectRatio = "2:3"

// ImageFetcher はパネル画像を取得する契約です。storage.Fetcher が満たします。
type ImageFetcher interface {
	Fetch(ctx context.Context, locator string) (ai.ImageData, error)
}

// Input はページ統合の入力です。
type Input struct {
	ProjectID     string
	Panels        domain.Panels
	PageSummaries map[int]string
	Instructions  string
	// Pages が空でなければそのページだけを統合します。
	Pages []int
	// Existing は以前の実行で統合済みのページです。前ページの文脈として使います。
	Existing []domain.MergedPage
}

// Merger はページごとにコラージュを描き、ブレンド指示を得て画像編集で 1 枚のページに仕上げます。
// 前ページの統合結果を次のページの文脈として渡すため、ページは昇順に 1 枚ずつ処理します。
type Merger struct {
	images      ai.ImageGenerator
	vision      ai.VisionGenerator
	fetcher     ImageFetcher
	blobs       ai.BlobWriter
	prompts     prompts.PromptBuilder
	renderer    *CollageRenderer
	limiter     *rate.Limiter
	newRevision func() string
}

// New は Merger を初期化します。vision が nil の場合は固定のブレンド指示を使います。
func New(
	images ai.ImageGenerator,
	vision ai.VisionGenerator,
	fetcher ImageFetcher,
	blobs ai.BlobWriter,
	pb prompts.PromptBuilder,
	renderer *CollageRenderer,
	limiter *rate.Limiter,
) (*Merger, error) {
	if images == nil {
		return nil, fmt.Errorf("ImageGenerator は必須です")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("ImageFetcher は必須です")
	}
	if blobs == nil {
		return nil, fmt.Errorf("BlobWriter は必須です")
	}
	if renderer == nil {
		renderer = NewCollageRenderer(0, 0, 0)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Merger{
		images:      images,
		vision:      vision,
		fetcher:     fetcher,
		blobs:       blobs,
		prompts:     pb,
		renderer:    renderer,
		limiter:     limiter,
		newRevision: func() string { return uuid.NewString()[:8] },
	}, nil
}

// Merge は対象ページを昇順に統合し、既存の統合結果と合わせてページ番号順に返します。
// 個々のページの失敗はログに残して続行し、すべてのページが失敗した場合だけエラーを返します。
func (m *Merger) Merge(ctx context.Context, in Input) ([]domain.MergedPage, error) {
	start := time.Now()
	logger := slog.With("stage", "merge", "project_id", in.ProjectID)

	merged := make(map[int]string, len(in.Existing))
	for _, mp := range in.Existing {
		if mp.ImageURL != "" {
			merged[mp.PageNumber] = mp.ImageURL
		}
	}

	pages := in.Pages
	if len(pages) == 0 {
		pages = in.Panels.PageNumbers()
	}
	pages = slices.Clone(pages)
	slices.Sort(pages)
	pages = slices.Compact(pages)

	revision := m.newRevision()
	var failed int
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		previous := merged[page-1]
		loc, err := m.mergePage(ctx, in, page, previous, revision)
		if err != nil {
			failed++
			logger.WarnContext(ctx, "ページの統合に失敗しました", "page", page, "error", err)
			delete(merged, page)
			continue
		}
		merged[page] = loc
	}
	if len(pages) > 0 && failed == len(pages) {
		return nil, fmt.Errorf("すべてのページの統合に失敗しました (%d ページ)", failed)
	}

	out := make([]domain.MergedPage, 0, len(merged))
	for _, page := range slices.Sorted(maps.Keys(merged)) {
		out = append(out, domain.MergedPage{PageNumber: page, ImageURL: merged[page]})
	}
	logger.InfoContext(ctx, "ページ統合が完了しました",
		"pages", len(pages),
		"failed", failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}

func (m *Merger) mergePage(ctx context.Context, in Input, page int, previous, revision string) (string, error) {
	logger := slog.With("page", page)
	panels := in.Panels.OnPage(page)
	if len(panels) == 0 {
		return "", fmt.Errorf("ページ %d にパネルがありません", page)
	}

	images := m.loadPanelImages(ctx, panels)
	if len(images) == 0 {
		return "", fmt.Errorf("ページ %d に生成済みのパネル画像がありません", page)
	}

	collage, err := Encode(m.renderer.Render(panels, images))
	if err != nil {
		return "", err
	}
	collageKey, err := asset.CollageKey(in.ProjectID, revision, page)
	if err != nil {
		return "", fmt.Errorf("コラージュの保存先の生成に失敗しました: %w", err)
	}
	collageLoc, err := m.blobs.Put(ctx, collageKey, collage, "image/png")
	if err != nil {
		return "", err
	}

	summary := in.PageSummaries[page]
	blend := m.describeBlend(ctx, page, summary, collageLoc, collage)
	prompt, err := m.prompts.Build(prompts.ModeMerge, prompts.TemplateData{
		InputText:    blend,
		PageNumber:   page,
		PageSummary:  summary,
		HasPrevious:  previous != "",
		Instructions: strings.TrimSpace(in.Instructions),
	})
	if err != nil {
		return "", err
	}

	var contextImages []string
	if previous != "" {
		contextImages = append(contextImages, previous)
	}
	pageKey, err := asset.PageImageKey(in.ProjectID, revision, page)
	if err != nil {
		return "", fmt.Errorf("ページ画像の保存先の生成に失敗しました: %w", err)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("リミッター待機中にエラーが発生しました: %w", err)
	}
	logger.InfoContext(ctx, "ページ統合リクエストを送信します", "panels", len(panels), "chained", previous != "")
	return m.images.Edit(ctx, ai.EditRequest{
		SourceImage:    collageLoc,
		Prompt:         prompt,
		NegativePrompt: prompts.PageNegativePrompt,
		AspectRatio:    PageAspectRatio,
		ContextImages:  contextImages,
		OutputKey:      pageKey,
	})
}

// loadPanelImages は画像のあるパネルを取得してデコードします。失敗したパネルは空枠で描きます。
func (m *Merger) loadPanelImages(ctx context.Context, panels domain.Panels) map[string]image.Image {
	out := make(map[string]image.Image, len(panels))
	for _, p := range panels {
		if p.ImageURL == "" {
			continue
		}
		data, err := m.fetcher.Fetch(ctx, parser.StripQuery(p.ImageURL))
		if err != nil {
			slog.WarnContext(ctx, "パネル画像の取得に失敗しました", "panel_id", p.ID, "error", err)
			continue
		}
		img, err := Decode(data.Data)
		if err != nil {
			slog.WarnContext(ctx, "パネル画像のデコードに失敗しました", "panel_id", p.ID, "error", err)
			continue
		}
		out[p.ID] = img
	}
	return out
}

// describeBlend は画像解析でブレンド指示を得ます。すべての候補が失敗した場合は固定の指示を返します。
func (m *Merger) describeBlend(ctx context.Context, page int, summary, collageLoc string, collage []byte) string {
	if m.vision == nil {
		return prompts.DefaultBlendDescription
	}
	prompt, err := m.prompts.Build(prompts.ModeBlend, prompts.TemplateData{PageNumber: page, PageSummary: summary})
	if err != nil {
		slog.WarnContext(ctx, "ブレンド指示のプロンプト構築に失敗しました", "error", err)
		return prompts.DefaultBlendDescription
	}
	desc, err := m.vision.Describe(ctx, prompt, []ai.ImageData{{Locator: collageLoc, Data: collage, MimeType: "image/png"}})
	if err != nil || strings.TrimSpace(desc) == "" {
		slog.WarnContext(ctx, "ブレンド指示の取得に失敗したため既定の指示を使います", "page", page, "error", err)
		return prompts.DefaultBlendDescription
	}
	return strings.TrimSpace(desc)
}
