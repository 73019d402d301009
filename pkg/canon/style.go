package canon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// minStyleGuideLength より短い画風テキストは正規化しません。
const minStyleGuideLength = 10

// StyleRegistry は自由記述の画風指定を再利用可能な画風トークンに正規化します。
type StyleRegistry struct {
	store   *Store
	text    ai.TextGenerator
	prompts prompts.PromptBuilder
	// suffix は画風の正典がない場合に既定の画風指定へ付け足す語句です。
	suffix string
}

// NewStyleRegistry は StyleRegistry を初期化します。
func NewStyleRegistry(store *Store, text ai.TextGenerator, pb prompts.PromptBuilder) *StyleRegistry {
	return &StyleRegistry{store: store, text: text, prompts: pb}
}

// WithSuffix は画風の正典がない場合に使う追加の画風語句を設定します。
func (r *StyleRegistry) WithSuffix(suffix string) *StyleRegistry {
	r.suffix = strings.TrimSpace(suffix)
	return r
}

// Normalize は画風テキストからトークンを抽出して正典に保存します。
// 元のテキストも最後のトークンとして残します。
func (r *StyleRegistry) Normalize(ctx context.Context, guide string) error {
	guide = strings.TrimSpace(guide)
	if len([]rune(guide)) < minStyleGuideLength {
		slog.DebugContext(ctx, "画風テキストが短いため正規化をスキップします", "length", len(guide))
		return nil
	}

	prompt, err := r.prompts.Build(prompts.ModeStyle, prompts.TemplateData{InputText: guide})
	if err != nil {
		return err
	}
	raw, err := r.text.Generate(ctx, prompt, "")
	if err != nil {
		return fmt.Errorf("画風の正規化に失敗しました: %w", err)
	}

	var res struct {
		StyleTokens []string `json:"style_tokens"`
	}
	if err := parser.DecodeJSON(raw, &res); err != nil {
		return fmt.Errorf("画風トークンの解析に失敗しました: %w", err)
	}

	tokens := append(cleanList(res.StyleTokens), guide)
	slog.InfoContext(ctx, "画風トークンを登録しました", "tokens", len(tokens))
	return r.store.UpdateStyle(ctx, domain.StyleCanon{Tokens: tokens, Raw: guide})
}

// StylePrompt は正典の画風トークンから画風指定を組み立てます。
func (r *StyleRegistry) StylePrompt() string {
	tokens := r.store.Style().Tokens
	if len(tokens) == 0 {
		if r.suffix != "" {
			return prompts.DefaultStylePrompt + " " + r.suffix + "."
		}
		return prompts.DefaultStylePrompt
	}
	return fmt.Sprintf("Art Style: %s. Organic comic book aesthetic.", strings.Join(tokens, ", "))
}
