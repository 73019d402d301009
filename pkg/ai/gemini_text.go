package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/shouni/go-gemini-client/pkg/gemini"
)

// GeminiText は go-gemini-client を使ったテキスト推論アダプターです。
type GeminiText struct {
	client gemini.GenerativeModel
	model  string
}

// NewGeminiText は GeminiText を初期化します。
func NewGeminiText(client gemini.GenerativeModel, model string) *GeminiText {
	return &GeminiText{client: client, model: model}
}

// Generate はシステムプロンプトを先頭に付与して1回の推論を実行します。
func (g *GeminiText) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + prompt
	}
	resp, err := g.client.GenerateContent(ctx, prompt, g.model)
	if err != nil {
		return "", fmt.Errorf("Gemini API の呼び出しに失敗しました (model: %s): %w", g.model, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("Gemini API から空の応答が返されました (model: %s)", g.model)
	}
	return text, nil
}
