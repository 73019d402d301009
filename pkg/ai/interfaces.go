package ai

import (
	"context"
	"errors"
)

// ErrNoCandidates はフォールバックチェーンのすべての候補が失敗したことを表します。
var ErrNoCandidates = errors.New("利用可能なバックエンドがすべて失敗しました")

// TextGenerator はテキスト推論の契約です。
type TextGenerator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// ImageData は画像解析に渡す画像の実体です。
type ImageData struct {
	Locator  string
	Data     []byte
	MimeType string
}

// VisionGenerator は画像を入力に取る推論の契約です。
type VisionGenerator interface {
	Describe(ctx context.Context, prompt string, images []ImageData) (string, error)
	// Name はログやメトリクスで使うバックエンド名です。
	Name() string
}

// GenerateRequest は新規画像生成のリクエストです。
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	StyleHint      string
	AspectRatio    string
	ContextImages  []string
	Seed           *int64
	// OutputKey は生成画像の保存先キーです。
	OutputKey string
}

// EditRequest は既存画像を起点にした画像生成のリクエストです。
type EditRequest struct {
	SourceImage    string
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	ContextImages  []string
	Seed           *int64
	OutputKey      string
}

// ImageGenerator は画像生成の契約です。戻り値は保存済み画像のロケーターです。
type ImageGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Edit(ctx context.Context, req EditRequest) (string, error)
}

// BlobWriter は生成された画像バイト列を保存し、ロケーターを返します。
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
