package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/parser"
)

// ErrNotFound は指定したオブジェクトが存在しないことを表します。
var ErrNotFound = errors.New("オブジェクトが見つかりません")

// Reader はローカルや GCS のオブジェクトを開く契約です。remoteio.InputReader が満たします。
type Reader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Writer はローカルや GCS へオブジェクトを書き込む契約です。remoteio.OutputWriter が満たします。
type Writer interface {
	Write(ctx context.Context, path string, r io.Reader, contentType string) error
}

// Store は STORAGE_BASE_URL を起点にした耐久オブジェクトストレージです。
// キーはベース URL からの相対パス ("projects/..." 等) で扱います。
type Store struct {
	reader  Reader
	writer  Writer
	baseURL string
}

// NewStore は Store を初期化します。
func NewStore(reader Reader, writer Writer, baseURL string) (*Store, error) {
	if reader == nil {
		return nil, fmt.Errorf("Reader は必須です")
	}
	if writer == nil {
		return nil, fmt.Errorf("Writer は必須です")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("ストレージのベース URL は必須です")
	}
	return &Store{reader: reader, writer: writer, baseURL: baseURL}, nil
}

// BaseURL はストレージのルートを返します。
func (s *Store) BaseURL() string {
	return s.baseURL
}

// Resolve は相対キーをベース URL 上の完全なパスに変換します。
// すでに絶対的なロケーター (gs://, http(s)://, 絶対パス) であればそのまま返します。
func (s *Store) Resolve(key string) (string, error) {
	if isAbsolute(key) {
		return key, nil
	}
	return asset.ResolveOutputPath(s.baseURL, strings.TrimPrefix(key, "/"))
}

// Put はデータを書き込み、保存先のロケーターを返します。ai.BlobWriter を満たします。
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	target, err := s.Resolve(key)
	if err != nil {
		return "", fmt.Errorf("出力パスの解決に失敗しました (key: %s): %w", key, err)
	}
	if err := s.writer.Write(ctx, target, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("オブジェクトの書き込みに失敗しました (%s): %w", target, err)
	}
	return target, nil
}

// Get はキーまたはロケーターのオブジェクトを読み込みます。
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	target, err := s.Resolve(key)
	if err != nil {
		return nil, fmt.Errorf("入力パスの解決に失敗しました (key: %s): %w", key, err)
	}
	rc, err := s.reader.Open(ctx, target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return nil, fmt.Errorf("オブジェクトのオープンに失敗しました (%s): %w", target, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("オブジェクトの読み込みに失敗しました (%s): %w", target, err)
	}
	return data, nil
}

// PublicURL は保存済みオブジェクトを外部から参照するための URL を返します。
func (s *Store) PublicURL(locator string) string {
	return parser.PublicURL(locator)
}

func isAbsolute(locator string) bool {
	lower := strings.ToLower(locator)
	return strings.HasPrefix(lower, "gs://") ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(locator, "/")
}
