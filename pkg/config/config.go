package config

import (
	"time"
)

// デフォルト値の定義
const (
	DefaultGeminiModel         = "gemini-3-flash-preview"
	DefaultVisionModel         = "gemini-3-flash-preview"
	DefaultVisionFallbackModel = "gemini-2.5-flash-lite"
	DefaultOpenAIModel         = "gpt-4o-mini"
	DefaultImageModel          = "gemini-3-pro-image-preview"
	DefaultRateInterval        = 10 * time.Second
	DefaultMergeRateInterval   = 30 * time.Second
	DefaultRequestTimeout      = 5 * time.Minute
	DefaultStoryBatchSize      = 10
	DefaultPlannerBatchSize    = 10
	DefaultScriptChunkSize     = 3000
	DefaultPageWidth           = 1024
	DefaultPageHeight          = 1536
	DefaultStyleSuffix         = "professional comic book illustration, clean inked line art, consistent character design, cinematic lighting, high resolution"
)

// DefaultPaddingRatio はページ余白の比率です (800px のキャンバスに対して 20px)。
const DefaultPaddingRatio = 20.0 / 800.0

// Config は Go Comic Kit の各コンポーネントを動作させるための基本設定です。
type Config struct {
	// --- AI Model Settings ---
	GeminiModel         string // テキスト推論用
	VisionModel         string // 画像解析 (一次候補)
	VisionFallbackModel string // 画像解析 (予備候補)
	OpenAIModel         string // 予備バックエンド
	ImageModel          string // パネル・ページ画像生成用

	// --- API Keys ---
	GeminiAPIKey string
	OpenAIAPIKey string

	// --- Generation Settings ---
	StyleSuffix       string
	RateInterval      time.Duration // パネル生成の間隔
	MergeRateInterval time.Duration // ページ統合の間隔

	// --- Batching ---
	StoryBatchSize   int
	PlannerBatchSize int
	ScriptChunkSize  int

	// --- Page Geometry ---
	PageWidth    int
	PageHeight   int
	PaddingRatio float64

	// --- Storage ---
	StorageBaseURL string // 生成物と正典を保存するルート (ローカル or gs://...)

	// --- Timeout ---
	RequestTimeout time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数です。
func DefaultConfig() Config {
	return Config{
		GeminiModel:         DefaultGeminiModel,
		VisionModel:         DefaultVisionModel,
		VisionFallbackModel: DefaultVisionFallbackModel,
		OpenAIModel:         DefaultOpenAIModel,
		ImageModel:          DefaultImageModel,
		StyleSuffix:         DefaultStyleSuffix,
		RateInterval:        DefaultRateInterval,
		MergeRateInterval:   DefaultMergeRateInterval,
		StoryBatchSize:      DefaultStoryBatchSize,
		PlannerBatchSize:    DefaultPlannerBatchSize,
		ScriptChunkSize:     DefaultScriptChunkSize,
		PageWidth:           DefaultPageWidth,
		PageHeight:          DefaultPageHeight,
		PaddingRatio:        DefaultPaddingRatio,
		RequestTimeout:      DefaultRequestTimeout,
	}
}
