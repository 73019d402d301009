package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/parser"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultCleanup      = 20 * time.Minute
	maxImageBytes       = 32 << 20
	defaultFetchTimeout = 30 * time.Second
)

// Fetcher は画像ロケーターからバイト列を取得します。
// gs:// やローカルパスは Store 経由、http(s) は HTTP クライアントで取得し、結果を一定時間キャッシュします。
type Fetcher struct {
	store      *Store
	httpClient *http.Client
	cache      *cache.Cache
	group      singleflight.Group
}

// NewFetcher は Fetcher を初期化します。httpClient が nil の場合は既定のクライアントを使います。
func NewFetcher(store *Store, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Fetcher{
		store:      store,
		httpClient: httpClient,
		cache:      cache.New(defaultCacheTTL, defaultCleanup),
	}
}

// Fetch は 1 件のロケーターを取得します。同じロケーターへの同時要求は 1 回の取得にまとめます。
func (f *Fetcher) Fetch(ctx context.Context, locator string) (ai.ImageData, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return ai.ImageData{}, fmt.Errorf("画像のロケーターが空です")
	}
	if cached, ok := f.cache.Get(locator); ok {
		return cached.(ai.ImageData), nil
	}

	v, err, _ := f.group.Do(locator, func() (interface{}, error) {
		if cached, ok := f.cache.Get(locator); ok {
			return cached, nil
		}
		data, err := f.load(ctx, locator)
		if err != nil {
			return nil, err
		}
		img := ai.ImageData{
			Locator:  locator,
			Data:     data,
			MimeType: DetectMimeType(locator, data),
		}
		f.cache.SetDefault(locator, img)
		return img, nil
	})
	if err != nil {
		return ai.ImageData{}, err
	}
	return v.(ai.ImageData), nil
}

// FetchAll は複数のロケーターを順に取得します。取得できなかったものはスキップし、エラーをまとめて返します。
func (f *Fetcher) FetchAll(ctx context.Context, locators []string) ([]ai.ImageData, []error) {
	var (
		images []ai.ImageData
		errs   []error
	)
	for _, loc := range locators {
		img, err := f.Fetch(ctx, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		images = append(images, img)
	}
	return images, errs
}

func (f *Fetcher) load(ctx context.Context, locator string) ([]byte, error) {
	lower := strings.ToLower(locator)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return f.download(ctx, locator)
	}
	if f.store == nil {
		return nil, fmt.Errorf("ストレージが設定されていないため取得できません: %s", locator)
	}
	return f.store.Get(ctx, parser.StripQuery(locator))
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("画像のダウンロードに失敗しました (%s): %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("画像のダウンロードに失敗しました (%s): status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("画像の読み込みに失敗しました (%s): %w", url, err)
	}
	return data, nil
}
