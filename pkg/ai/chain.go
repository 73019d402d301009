package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// VisionChain は複数の画像解析バックエンドを順に試すフォールバックチェーンです。
// 最初に成功した候補の結果を返します。
type VisionChain struct {
	candidates []VisionGenerator
}

// NewVisionChain は nil を除いた候補でチェーンを構築します。
func NewVisionChain(candidates ...VisionGenerator) *VisionChain {
	c := &VisionChain{}
	for _, v := range candidates {
		if v != nil {
			c.candidates = append(c.candidates, v)
		}
	}
	return c
}

// Name はチェーンを構成するバックエンド名を連結して返します。
func (c *VisionChain) Name() string {
	names := make([]string, len(c.candidates))
	for i, v := range c.candidates {
		names[i] = v.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Describe は候補を順に呼び出し、空でない最初の応答を返します。
func (c *VisionChain) Describe(ctx context.Context, prompt string, images []ImageData) (string, error) {
	var errs []error
	for _, v := range c.candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := v.Describe(ctx, prompt, images)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = fmt.Errorf("%s: 空の応答", v.Name())
		}
		slog.WarnContext(ctx, "画像解析バックエンドが失敗したため次の候補を試します", "backend", v.Name(), "error", err)
		errs = append(errs, err)
	}
	return "", fmt.Errorf("%w: %w", ErrNoCandidates, errors.Join(errs...))
}

// TextChain はテキスト推論のフォールバックチェーンです。
type TextChain struct {
	candidates []TextGenerator
}

// NewTextChain は nil を除いた候補でチェーンを構築します。
func NewTextChain(candidates ...TextGenerator) *TextChain {
	c := &TextChain{}
	for _, t := range candidates {
		if t != nil {
			c.candidates = append(c.candidates, t)
		}
	}
	return c
}

// Generate は候補を順に呼び出し、空でない最初の応答を返します。
func (c *TextChain) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	var errs []error
	for i, t := range c.candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := t.Generate(ctx, prompt, systemPrompt)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = fmt.Errorf("候補 %d: 空の応答", i+1)
		}
		slog.WarnContext(ctx, "テキスト推論バックエンドが失敗したため次の候補を試します", "candidate", i+1, "error", err)
		errs = append(errs, err)
	}
	return "", fmt.Errorf("%w: %w", ErrNoCandidates, errors.Join(errs...))
}
