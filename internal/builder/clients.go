package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	imagekit "github.com/shouni/gemini-image-kit/pkg/generator"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"google.golang.org/genai"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/config"
)

const (
	defaultGeminiTemperature = float32(0.2)
	defaultCacheExpiration   = 5 * time.Minute
	cacheCleanupInterval     = 15 * time.Minute
	defaultTTL               = 5 * time.Minute
)

// InitializeAIClient は gemini クライアントを初期化するのだ。
func InitializeAIClient(ctx context.Context, apiKey string) (gemini.GenerativeModel, error) {
	clientConfig := gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(defaultGeminiTemperature),
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// buildText は Gemini を一次候補、OpenAI を予備とするテキスト推論を組み立てるのだ。
func buildText(cfg config.Config, aiClient gemini.GenerativeModel) ai.TextGenerator {
	primary := ai.InstrumentText(ai.NewGeminiText(aiClient, cfg.GeminiModel), "gemini", cfg.RequestTimeout)
	if cfg.OpenAIAPIKey == "" {
		return primary
	}
	backup := ai.InstrumentText(ai.NewOpenAIChat(cfg.OpenAIAPIKey, "", cfg.OpenAIModel), "openai", cfg.RequestTimeout)
	return ai.NewTextChain(primary, backup)
}

// buildVision は画像解析のフォールバックチェーン (一次モデル → 予備モデル → OpenAI) を組み立てるのだ。
func buildVision(ctx context.Context, cfg config.Config) (ai.VisionGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai クライアントの初期化に失敗しました: %w", err)
	}

	candidates := []ai.VisionGenerator{ai.NewGenAIVision(client, cfg.VisionModel)}
	if cfg.VisionFallbackModel != "" && cfg.VisionFallbackModel != cfg.VisionModel {
		candidates = append(candidates, ai.NewGenAIVision(client, cfg.VisionFallbackModel))
	}
	if cfg.OpenAIAPIKey != "" {
		candidates = append(candidates, ai.NewOpenAIChat(cfg.OpenAIAPIKey, "", cfg.OpenAIModel))
	}
	return ai.InstrumentVision(ai.NewVisionChain(candidates...), cfg.RequestTimeout), nil
}

// buildImages は画像キャッシュ付きの GeminiImageCore から画像生成アダプターを組み立てるのだ。
func buildImages(cfg config.Config, reader remoteio.InputReader, httpClient httpkit.ClientInterface, aiClient gemini.GenerativeModel, writer ai.BlobWriter) (ai.ImageGenerator, error) {
	core, err := initializeCore(reader, httpClient, aiClient)
	if err != nil {
		return nil, fmt.Errorf("画像生成エンジンの初期化に失敗しました: %w", err)
	}
	gen, err := imagekit.NewGeminiGenerator(cfg.ImageModel, core)
	if err != nil {
		return nil, fmt.Errorf("ImageGeneratorの初期化に失敗しました: %w", err)
	}
	kit, err := ai.NewKitImageGenerator(gen, core, writer)
	if err != nil {
		return nil, err
	}
	return ai.InstrumentImage(kit, "gemini-image-kit", cfg.RequestTimeout), nil
}

// initializeCore は提供された依存関係で構成された GeminiImageCore インスタンスを初期化して返すのだ。
func initializeCore(reader remoteio.InputReader, httpClient httpkit.ClientInterface, aiClient gemini.GenerativeModel) (*imagekit.GeminiImageCore, error) {
	imgCache := cache.New(defaultCacheExpiration, cacheCleanupInterval)
	core, err := imagekit.NewGeminiImageCore(
		aiClient,
		reader,
		httpClient,
		imgCache,
		defaultTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("GeminiImageCore の初期化に失敗しました: %w", err)
	}
	return core, nil
}
