package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIChat は OpenAI 互換 API を使う予備のテキスト・画像解析アダプターです。
type OpenAIChat struct {
	client *openai.Client
	model  string
}

// NewOpenAIChat は API キーとモデル名から OpenAIChat を初期化します。
// baseURL が空でなければ OpenAI 互換の別エンドポイントを使います。
func NewOpenAIChat(apiKey, baseURL, model string) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIChat{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name はバックエンド名を返します。
func (o *OpenAIChat) Name() string {
	return "openai:" + o.model
}

// Generate はテキストのみのチャット補完を実行します。
func (o *OpenAIChat) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	return o.complete(ctx, messages)
}

// Describe は画像をデータ URL として埋め込んだチャット補完を実行します。
func (o *OpenAIChat) Describe(ctx context.Context, prompt string, images []ImageData) (string, error) {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto},
		})
	}
	return o.complete(ctx, []openai.ChatCompletionMessage{{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	}})
}

func (o *OpenAIChat) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API の呼び出しに失敗しました (model: %s): %w", o.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAI API から空の応答が返されました")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
