package world

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/canon"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// maxConcurrentExtractions は同時に行う視覚特徴抽出の上限です。
const maxConcurrentExtractions = 3

// Input は世界モデル構築への入力です。
type Input struct {
	// Summary は物語の要約 (ストーリー理解の結果) です。
	Summary    string
	Characters []domain.EntitySeed
	Sceneries  []domain.EntitySeed
	StyleGuide string
	// SourceImages は取り込み元に含まれていた画像です。画風の参考として扱います。
	SourceImages []string
}

// Result は構築後の正典に登録された名前です。
type Result struct {
	Characters []string
	Sceneries  []string
}

// Builder は物語の文脈からキャラクターと背景を抽出し、正典へ統合します。
type Builder struct {
	characters *canon.EntityRegistry
	sceneries  *canon.EntityRegistry
	style      *canon.StyleRegistry
	text       ai.TextGenerator
	prompts    prompts.PromptBuilder
}

// NewBuilder は Builder を初期化します。
func NewBuilder(characters, sceneries *canon.EntityRegistry, style *canon.StyleRegistry, text ai.TextGenerator, pb prompts.PromptBuilder) *Builder {
	return &Builder{characters: characters, sceneries: sceneries, style: style, text: text, prompts: pb}
}

type identified struct {
	Characters []entity `json:"characters"`
	Sceneries  []entity `json:"sceneries"`
}

type entity struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Build は呼び出し元指定のエンティティをそのまま登録し、推論で追加のエンティティを識別します。
// 参照画像を持ち視覚特徴が未抽出のエンティティは並行して特徴抽出を行います。
// 推論や抽出の失敗は警告に留め、正典の構築を続けます。
func (b *Builder) Build(ctx context.Context, in Input) (Result, error) {
	start := time.Now()
	logger := slog.With("stage", "world")

	if in.StyleGuide != "" && b.style != nil {
		if err := b.style.Normalize(ctx, in.StyleGuide); err != nil {
			logger.WarnContext(ctx, "画風の正規化に失敗しました", "error", err)
		}
	}

	// 呼び出し元の指定は常に名前解決で優先されるため、特徴抽出より先に登録だけ済ませる
	pending := b.preRegister(ctx, logger, in)

	if strings.TrimSpace(in.Summary) != "" {
		if err := b.identify(ctx, in.Summary); err != nil {
			logger.WarnContext(ctx, "エンティティの識別に失敗しました", "error", err)
		}
	}

	g, egCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentExtractions)
	for _, job := range pending {
		g.Go(func() error {
			if err := job.registry.ExtractTraits(egCtx, job.seed.Name, job.seed.ReferenceImages); err != nil {
				logger.WarnContext(egCtx, "視覚特徴の抽出に失敗しました", "name", job.seed.Name, "kind", job.registry.Kind(), "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Characters: b.characters.Names(), Sceneries: b.sceneries.Names()}
	logger.InfoContext(ctx, "世界モデルを構築しました",
		"characters", len(res.Characters),
		"sceneries", len(res.Sceneries),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

type extraction struct {
	registry *canon.EntityRegistry
	seed     domain.EntitySeed
}

func (b *Builder) preRegister(ctx context.Context, logger *slog.Logger, in Input) []extraction {
	var pending []extraction
	register := func(reg *canon.EntityRegistry, seeds []domain.EntitySeed) {
		for _, seed := range seeds {
			if strings.TrimSpace(seed.Name) == "" {
				continue
			}
			if err := reg.Upsert(ctx, seed); err != nil {
				logger.WarnContext(ctx, "エンティティの登録に失敗しました", "name", seed.Name, "error", err)
				continue
			}
			if len(seed.ReferenceImages) > 0 && !reg.HasTraits(seed.Name) {
				pending = append(pending, extraction{registry: reg, seed: seed})
			}
		}
	}
	register(b.characters, in.Characters)
	register(b.sceneries, in.Sceneries)
	return pending
}

func (b *Builder) identify(ctx context.Context, summary string) error {
	known := append(b.characters.Names(), b.sceneries.Names()...)
	prompt, err := b.prompts.Build(prompts.ModeWorld, prompts.TemplateData{
		InputText:  summary,
		KnownNames: known,
	})
	if err != nil {
		return err
	}
	raw, err := b.text.Generate(ctx, prompt, "")
	if err != nil {
		return err
	}
	var res identified
	if err := parser.DecodeJSON(raw, &res); err != nil {
		return err
	}

	merge := func(reg *canon.EntityRegistry, items []entity) {
		for _, e := range items {
			name := strings.TrimSpace(e.Name)
			if name == "" {
				continue
			}
			// 既存のエンティティは呼び出し元の定義を優先し、説明を上書きしない
			if reg.Has(name) {
				continue
			}
			if err := reg.Register(ctx, domain.EntitySeed{Name: name, Description: e.Description}); err != nil {
				slog.WarnContext(ctx, "識別したエンティティの登録に失敗しました", "name", name, "error", err)
			}
		}
	}
	merge(b.characters, res.Characters)
	merge(b.sceneries, res.Sceneries)
	return nil
}

// Describe は正典の内容を世界の要約として文字列化します。プランナーの入力に使います。
func (b *Builder) Describe(summary string) string {
	var sb strings.Builder
	if summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n\n")
	}
	if names := b.characters.Names(); len(names) > 0 {
		fmt.Fprintf(&sb, "Characters: %s\n", strings.Join(names, ", "))
	}
	if names := b.sceneries.Names(); len(names) > 0 {
		fmt.Fprintf(&sb, "Sceneries: %s\n", strings.Join(names, ", "))
	}
	return strings.TrimSpace(sb.String())
}
