package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"

	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/canon"
	"github.com/shouni/go-comic-kit/pkg/publisher"
	"github.com/shouni/go-comic-kit/pkg/storage"
	"github.com/shouni/go-comic-kit/pkg/workflow"
)

// AppContext は、アプリケーション実行に必要な共通の部品を保持するのだ。
// これを各コマンドに渡すことで、依存関係の注入を簡素化するのだ。
type AppContext struct {
	Config    *config.Config
	Store     *storage.Store     // Store は画像・正典・実行結果を保存するストレージなのだ。
	Manager   *workflow.Manager  // Manager はプロジェクトごとのパイプラインを組み立てるのだ。
	Publisher *publisher.RunPublisher
	closers   []func() error
}

// NewAppContext は設定から外部クライアントを初期化し、AppContext を組み立てるのだ。
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{Config: cfg}
	kit := cfg.Kit

	httpClient := httpkit.New(cfg.HTTPTimeout)
	aiClient, err := InitializeAIClient(ctx, kit.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	gcsFactory, err := gcsfactory.NewGCSClientFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSクライアントファクトリの初期化に失敗しました: %w", err)
	}
	reader, err := gcsFactory.NewInputReader()
	if err != nil {
		return nil, err
	}
	writer, err := gcsFactory.NewOutputWriter()
	if err != nil {
		return nil, err
	}
	app.Store, err = storage.NewStore(reader, writer, kit.StorageBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ストレージの初期化に失敗しました: %w", err)
	}
	fetcher := storage.NewFetcher(app.Store, &http.Client{Timeout: cfg.HTTPTimeout})

	vision, err := buildVision(ctx, kit)
	if err != nil {
		return nil, err
	}
	images, err := buildImages(kit, reader, httpClient, aiClient, app.Store)
	if err != nil {
		return nil, err
	}
	repo, err := app.canonRepository(ctx)
	if err != nil {
		return nil, err
	}

	app.Manager, err = workflow.New(workflow.ManagerArgs{
		Config:  kit,
		Text:    buildText(kit, aiClient),
		Vision:  vision,
		Images:  images,
		Canon:   repo,
		Blobs:   app.Store,
		Fetcher: fetcher,
	})
	if err != nil {
		return nil, fmt.Errorf("ワークフローの初期化に失敗しました: %w", err)
	}
	app.Publisher, err = publisher.NewRunPublisher(app.Store)
	if err != nil {
		return nil, err
	}

	slog.Info("アプリケーションの部品を初期化したのだ",
		"text_model", kit.GeminiModel,
		"image_model", kit.ImageModel,
		"storage", kit.StorageBaseURL,
		"canon_backend", cfg.CanonBackend,
	)
	return app, nil
}

// canonRepository は CANON_BACKEND に応じて正典の保存先を選ぶのだ。
func (a *AppContext) canonRepository(ctx context.Context) (canon.Repository, error) {
	switch a.Config.CanonBackend {
	case config.CanonBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("Redis への接続に失敗しました (addr: %s): %w", a.Config.RedisAddr, err)
		}
		a.closers = append(a.closers, client.Close)
		return canon.NewRedisRepository(client), nil
	case config.CanonBackendStorage, "":
		return canon.NewObjectRepository(a.Store), nil
	default:
		return nil, fmt.Errorf("未対応の CANON_BACKEND なのだ: %q", a.Config.CanonBackend)
	}
}

// Close は保持している接続を閉じるのだ。
func (a *AppContext) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
