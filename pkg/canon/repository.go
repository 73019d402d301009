package canon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/storage"
)

// ErrNotFound は正典ドキュメントがまだ存在しないことを表します。
var ErrNotFound = errors.New("正典ドキュメントが見つかりません")

// Repository は正典ドキュメントの永続化先です。
type Repository interface {
	Load(ctx context.Context, projectID string) (*domain.Canon, error)
	Save(ctx context.Context, projectID string, c *domain.Canon) error
}

// ObjectRepository はオブジェクトストレージ上の projects/{id}/canon/canon.json に正典を保存します。
type ObjectRepository struct {
	store *storage.Store
}

// NewObjectRepository は ObjectRepository を初期化します。
func NewObjectRepository(store *storage.Store) *ObjectRepository {
	return &ObjectRepository{store: store}
}

func (r *ObjectRepository) Load(ctx context.Context, projectID string) (*domain.Canon, error) {
	data, err := r.store.Get(ctx, asset.CanonKey(projectID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (r *ObjectRepository) Save(ctx context.Context, projectID string, c *domain.Canon) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("正典のエンコードに失敗しました: %w", err)
	}
	_, err = r.store.Put(ctx, asset.CanonKey(projectID), data, "application/json; charset=utf-8")
	return err
}

// RedisRepository は Redis の文字列キー comic:canon:{id} に正典を保存します。
type RedisRepository struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRepository は RedisRepository を初期化します。
func NewRedisRepository(client redis.Cmdable) *RedisRepository {
	return &RedisRepository{client: client, prefix: "comic:canon:"}
}

func (r *RedisRepository) Load(ctx context.Context, projectID string) (*domain.Canon, error) {
	data, err := r.client.Get(ctx, r.prefix+projectID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("Redis からの正典の取得に失敗しました: %w", err)
	}
	return decode(data)
}

func (r *RedisRepository) Save(ctx context.Context, projectID string, c *domain.Canon) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("正典のエンコードに失敗しました: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+projectID, data, 0).Err(); err != nil {
		return fmt.Errorf("Redis への正典の保存に失敗しました: %w", err)
	}
	return nil
}

// MemoryRepository はプロセス内に正典を保持します。テストや埋め込み用途向けです。
type MemoryRepository struct {
	mu    sync.Mutex
	docs  map[string][]byte
	Saves int
}

// NewMemoryRepository は空の MemoryRepository を返します。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string][]byte)}
}

func (r *MemoryRepository) Load(_ context.Context, projectID string) (*domain.Canon, error) {
	r.mu.Lock()
	data, ok := r.docs[projectID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (r *MemoryRepository) Save(_ context.Context, projectID string, c *domain.Canon) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[projectID] = data
	r.Saves++
	return nil
}

func decode(data []byte) (*domain.Canon, error) {
	c := domain.NewCanon()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("正典ドキュメントの解析に失敗しました: %w", err)
	}
	c.EnsureMaps()
	return c, nil
}
