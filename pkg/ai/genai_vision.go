package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIVision は genai SDK を直接使うマルチモーダル推論アダプターです。
type GenAIVision struct {
	client *genai.Client
	model  string
}

// NewGenAIVision は GenAIVision を初期化します。
func NewGenAIVision(client *genai.Client, model string) *GenAIVision {
	return &GenAIVision{client: client, model: model}
}

// Name はバックエンド名を返します。
func (v *GenAIVision) Name() string {
	return "gemini:" + v.model
}

// Describe はすべての画像を1回のリクエストに含めて推論します。
func (v *GenAIVision) Describe(ctx context.Context, prompt string, images []ImageData) (string, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, genai.NewPartFromText(prompt))
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := v.client.Models.GenerateContent(ctx, v.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("画像解析リクエストに失敗しました (model: %s): %w", v.model, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("画像解析の応答が空です (model: %s)", v.model)
	}
	return text, nil
}
