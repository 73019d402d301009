package world

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/canon"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

type fakeText struct {
	response string
	prompts  []string
}

func (f *fakeText) Generate(_ context.Context, prompt, _ string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, nil
}

type fakeVision struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeVision) Name() string { return "fake" }

func (f *fakeVision) Describe(_ context.Context, prompt string, _ []ai.ImageData) (string, error) {
	f.mu.Lock()
	f.names = append(f.names, prompt)
	f.mu.Unlock()
	return `{"traits": ["scar on chin"]}`, nil
}

type fakeFetcher struct{}

func (fakeFetcher) FetchAll(_ context.Context, locators []string) ([]ai.ImageData, []error) {
	out := make([]ai.ImageData, len(locators))
	for i, l := range locators {
		out[i] = ai.ImageData{Locator: l, Data: []byte("x"), MimeType: "image/png"}
	}
	return out, nil
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	pb := prompts.MustBuilder()
	store := canon.NewEmpty(canon.NewMemoryRepository(), "p1")
	vision := &fakeVision{}
	text := &fakeText{response: `{"characters": [{"name": "ana torres", "description": "duplicate"}, {"name": "Bruno", "description": "smuggler"}],
		"sceneries": [{"name": "Harbor", "description": "foggy docks"}]}`}

	chars := canon.NewCharacterRegistry(store, vision, fakeFetcher{}, pb)
	scenes := canon.NewSceneryRegistry(store, vision, fakeFetcher{}, pb)
	b := NewBuilder(chars, scenes, canon.NewStyleRegistry(store, text, pb), text, pb)

	res, err := b.Build(ctx, Input{
		Summary: "Ana chases Bruno through the harbor.",
		Characters: []domain.EntitySeed{
			{Name: "Ana Torres", Description: "detective", ReferenceImages: []string{"a1.png", "a2.png"}},
		},
		Sceneries: []domain.EntitySeed{
			{Name: "Warehouse", ReferenceImages: []string{"w.png"}},
		},
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	t.Run("既知の名前が識別プロンプトに渡されること", func(t *testing.T) {
		if len(text.prompts) != 1 || !strings.Contains(text.prompts[0], "Ana Torres") {
			t.Errorf("識別プロンプトに既知の名前が含まれていません: %v", text.prompts)
		}
	})

	t.Run("呼び出し元の定義が優先され重複しないこと", func(t *testing.T) {
		if !slices.Equal(res.Characters, []string{"Ana Torres", "Bruno"}) {
			t.Errorf("Characters = %v", res.Characters)
		}
		_, entry, _ := store.FindCharacter("Ana Torres")
		if entry.Description != "detective" {
			t.Errorf("呼び出し元の説明が上書きされました: %q", entry.Description)
		}
		if !slices.Equal(res.Sceneries, []string{"Harbor", "Warehouse"}) {
			t.Errorf("Sceneries = %v", res.Sceneries)
		}
	})

	t.Run("参照画像のあるエンティティだけ特徴抽出されること", func(t *testing.T) {
		if len(vision.names) != 2 {
			t.Errorf("特徴抽出の回数 = %d, want 2", len(vision.names))
		}
		_, entry, _ := store.FindScenery("Warehouse")
		if !entry.HasTraits() {
			t.Error("Warehouse の視覚特徴が登録されていません")
		}
	})

	t.Run("特徴抽出済みなら再構築で抽出しないこと", func(t *testing.T) {
		before := len(vision.names)
		_, err := b.Build(ctx, Input{Characters: []domain.EntitySeed{
			{Name: "Ana Torres", ReferenceImages: []string{"a1.png"}},
		}})
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if len(vision.names) != before {
			t.Error("抽出済みのエンティティで再抽出されました")
		}
	})
}

func TestBuilder_IdentifyShortName(t *testing.T) {
	ctx := context.Background()
	pb := prompts.MustBuilder()
	store := canon.NewEmpty(canon.NewMemoryRepository(), "p1")
	text := &fakeText{response: `{"characters": [{"name": "Al", "description": "Alice's younger brother"}], "sceneries": []}`}
	chars := canon.NewCharacterRegistry(store, nil, nil, pb)
	scenes := canon.NewSceneryRegistry(store, nil, nil, pb)
	b := NewBuilder(chars, scenes, canon.NewStyleRegistry(store, text, pb), text, pb)

	res, err := b.Build(ctx, Input{
		Summary:    "Alice and Al search the attic.",
		Characters: []domain.EntitySeed{{Name: "Alice", Description: "older sister"}},
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	t.Run("既存の名前を部分に含むだけの新しい名前も登録されること", func(t *testing.T) {
		if !slices.Equal(res.Characters, []string{"Al", "Alice"}) {
			t.Errorf("Characters = %v", res.Characters)
		}
		if !chars.Has("Al") || !chars.Has("alice") {
			t.Error("Has() が登録済みの名前を見つけられません")
		}
		if chars.Has("Ali") {
			t.Error("Has() が部分一致で true を返しました")
		}
	})
}
