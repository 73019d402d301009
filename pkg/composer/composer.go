package composer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/canon"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

const worldSummaryLimit = 500

// Input は 1 パネル分のプロンプト合成の入力です。
type Input struct {
	Panel        domain.Panel
	Continuity   domain.ContinuityState
	WorldSummary string
	PanelPurpose string
}

// Layers はプロンプトを構成する各層です。層ごとに個別に上書きできます。
type Layers struct {
	Style        string
	Characters   string
	Scenery      string
	Scene        string
	AspectRatio  string
	Instructions string
	Edit         bool
}

// Fallback は推論呼び出しが使えない場合に各層をそのまま連結したプロンプトを返します。
func (l Layers) Fallback() string {
	var parts []string
	if l.Style != "" {
		parts = append(parts, l.Style)
	}
	if l.Characters != "" {
		parts = append(parts, l.Characters)
	}
	if l.Scenery != "" {
		parts = append(parts, l.Scenery)
	}
	parts = append(parts, fmt.Sprintf("Scene: %s", l.Scene))
	parts = append(parts, fmt.Sprintf("Cinematic composition, aspect ratio %s.", l.AspectRatio))
	if l.Instructions != "" {
		parts = append(parts, "Instructions: "+l.Instructions)
	}
	return strings.Join(parts, "\n")
}

// Composer は画風・正典・連続性・ユーザー指示を層として重ね、最終的な画像生成プロンプトを作ります。
type Composer struct {
	text       ai.TextGenerator
	prompts    prompts.PromptBuilder
	characters *canon.EntityRegistry
	sceneries  *canon.EntityRegistry
	style      *canon.StyleRegistry
}

// New は Composer を初期化します。text が nil の場合は常にフォールバックの連結を使います。
func New(text ai.TextGenerator, pb prompts.PromptBuilder, characters, sceneries *canon.EntityRegistry, style *canon.StyleRegistry) *Composer {
	return &Composer{text: text, prompts: pb, characters: characters, sceneries: sceneries, style: style}
}

// Layers はパネルのプロンプト層を組み立てます。
func (c *Composer) Layers(in Input) Layers {
	p := in.Panel
	l := Layers{
		Style:        c.styleLayer(p),
		Characters:   c.characterLayer(p, in.Continuity),
		Scenery:      c.sceneryLayer(p, in.Continuity),
		Scene:        strings.TrimSpace(p.SceneDescription),
		AspectRatio:  p.Layout.AspectRatio(),
		Instructions: strings.TrimSpace(p.Instructions),
	}
	l.Edit = p.Status == domain.PanelEditing && l.Instructions != ""
	return l
}

// Compose はパネルの最終プロンプトを返します。空文字を返すことはありません。
func (c *Composer) Compose(ctx context.Context, in Input) string {
	l := c.Layers(in)
	logger := slog.With("stage", "compose", "panel_id", in.Panel.ID)

	if c.text == nil {
		return l.Fallback()
	}

	mode := prompts.ModePanel
	if l.Edit {
		mode = prompts.ModePanelEdit
	}
	width, height := in.Panel.Layout.W, in.Panel.Layout.H
	if !in.Panel.Layout.IsAssigned() {
		width, height = 50, 50
	}
	prompt, err := c.prompts.Build(mode, prompts.TemplateData{
		InputText:      l.Scene,
		Style:          l.Style,
		WorldSummary:   parser.Truncate(in.WorldSummary, worldSummaryLimit),
		PanelPurpose:   in.PanelPurpose,
		Scenery:        orNone(l.Scenery),
		CharacterBlock: orNone(l.Characters),
		AspectRatio:    l.AspectRatio,
		Width:          width,
		Height:         height,
		Instructions:   l.Instructions,
		PreviousPrompt: orNone(in.Panel.Prompt),
	})
	if err != nil {
		logger.WarnContext(ctx, "合成プロンプトの構築に失敗したため連結プロンプトを使います", "error", err)
		return l.Fallback()
	}

	out, err := c.text.Generate(ctx, prompt, "")
	if err != nil {
		logger.WarnContext(ctx, "プロンプト合成に失敗したため連結プロンプトを使います", "error", err)
		return l.Fallback()
	}
	out = strings.Trim(strings.TrimSpace(out), "`\"")
	if out == "" {
		logger.WarnContext(ctx, "合成されたプロンプトが空のため連結プロンプトを使います")
		return l.Fallback()
	}
	return out
}

func (c *Composer) styleLayer(p domain.Panel) string {
	if s := strings.TrimSpace(p.PanelStyle); s != "" {
		return "STYLE OVERRIDE: " + s
	}
	if c.style == nil {
		return prompts.DefaultStylePrompt
	}
	return c.style.StylePrompt()
}

// characterLayer は登場キャラクターごとに正典の断片と連続性の差分を並べます。
// 連続性は名前の完全一致、大文字小文字を無視した一致、正典の表示名の順で引きます。
func (c *Composer) characterLayer(p domain.Panel, state domain.ContinuityState) string {
	var blocks []string
	for _, name := range p.Characters {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		segment := fmt.Sprintf("Character: %s", name)
		display := name
		if c.characters != nil {
			segment = c.characters.PromptSegment(name)
			if d, _, ok := c.characters.Find(name); ok {
				display = d
			}
		}
		attrs, ok := state.CharacterState(name)
		if !ok && display != name {
			attrs, ok = state.CharacterState(display)
		}
		if pairs := attrs.Pairs(); ok && len(pairs) > 0 {
			segment += fmt.Sprintf(" [Continuity: %s]", strings.Join(pairs, ", "))
		}
		blocks = append(blocks, segment)
	}
	return strings.Join(blocks, "\n")
}

func (c *Composer) sceneryLayer(p domain.Panel, state domain.ContinuityState) string {
	name := strings.TrimSpace(p.Scenery)
	if name == "" && len(state.Environment) == 0 {
		return ""
	}
	var segment string
	switch {
	case name == "":
		segment = "Scenery: unspecified"
	case c.sceneries != nil:
		segment = c.sceneries.PromptSegment(name)
	default:
		segment = fmt.Sprintf("Scenery: %s", name)
	}
	if pairs := state.Environment.Pairs(); len(pairs) > 0 {
		segment += fmt.Sprintf(" (Environment continuity: %s)", strings.Join(pairs, "; "))
	}
	return segment
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
