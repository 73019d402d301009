package canon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// Kind は正典エントリーの種類です。
type Kind string

const (
	KindCharacter Kind = "character"
	KindScenery   Kind = "scenery"
)

// ImageFetcher は参照画像を取得する契約です。storage.Fetcher が満たします。
type ImageFetcher interface {
	FetchAll(ctx context.Context, locators []string) ([]ai.ImageData, []error)
}

// EntityRegistry はキャラクターまたは背景の正典を管理し、画像解析による視覚特徴の抽出と
// プロンプト断片の生成を行います。
type EntityRegistry struct {
	kind    Kind
	store   *Store
	vision  ai.VisionGenerator
	fetcher ImageFetcher
	prompts prompts.PromptBuilder
}

// NewCharacterRegistry はキャラクター用のレジストリを返します。
func NewCharacterRegistry(store *Store, vision ai.VisionGenerator, fetcher ImageFetcher, pb prompts.PromptBuilder) *EntityRegistry {
	return &EntityRegistry{kind: KindCharacter, store: store, vision: vision, fetcher: fetcher, prompts: pb}
}

// NewSceneryRegistry は背景用のレジストリを返します。
func NewSceneryRegistry(store *Store, vision ai.VisionGenerator, fetcher ImageFetcher, pb prompts.PromptBuilder) *EntityRegistry {
	return &EntityRegistry{kind: KindScenery, store: store, vision: vision, fetcher: fetcher, prompts: pb}
}

// Kind はレジストリが扱う種類を返します。
func (r *EntityRegistry) Kind() Kind {
	return r.kind
}

// Register は説明と参照画像を正典に登録します。
// 既存の視覚特徴は保持し、特徴が未抽出で参照画像がある場合だけ抽出を行います。
func (r *EntityRegistry) Register(ctx context.Context, seed domain.EntitySeed) error {
	if err := r.Upsert(ctx, seed); err != nil {
		return err
	}
	if len(seed.ReferenceImages) == 0 || r.HasTraits(seed.Name) {
		return nil
	}
	return r.ExtractTraits(ctx, strings.TrimSpace(seed.Name), seed.ReferenceImages)
}

// Upsert は説明と参照画像だけを正典に書き込みます。視覚特徴の抽出は行いません。
// 空の説明や参照画像は既存の値を変更しません。
func (r *EntityRegistry) Upsert(ctx context.Context, seed domain.EntitySeed) error {
	name := strings.TrimSpace(seed.Name)
	if name == "" {
		return fmt.Errorf("%s の名前が空です", r.kind)
	}

	var patch domain.EntryPatch
	if seed.Description != "" {
		desc := seed.Description
		patch.Description = &desc
	}
	if len(seed.ReferenceImages) > 0 {
		patch.RefImages = seed.ReferenceImages
	}
	return r.update(ctx, name, patch)
}

// HasTraits は完全一致するエントリーに視覚特徴があるかどうかを返します。
func (r *EntityRegistry) HasTraits(name string) bool {
	entry, ok := r.exact(name)
	return ok && entry.HasTraits()
}

// ExtractTraits はすべての参照画像を 1 回の画像解析呼び出しに渡し、全画像で一貫する視覚特徴を抽出します。
func (r *EntityRegistry) ExtractTraits(ctx context.Context, name string, refImages []string) error {
	if len(refImages) == 0 {
		return nil
	}
	if r.vision == nil || r.fetcher == nil {
		return fmt.Errorf("画像解析が設定されていないため視覚特徴を抽出できません: %s", name)
	}

	logger := slog.With("kind", r.kind, "name", name)
	images, errs := r.fetcher.FetchAll(ctx, refImages)
	for _, err := range errs {
		logger.WarnContext(ctx, "参照画像の取得に失敗しました", "error", err)
	}
	if len(images) == 0 {
		return fmt.Errorf("参照画像を 1 枚も取得できませんでした (%s): %w", name, errors.Join(errs...))
	}

	prompt, err := r.prompts.Build(prompts.ModeTraits, prompts.TemplateData{
		Name:       name,
		Kind:       string(r.kind),
		ImageCount: len(images),
	})
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "視覚特徴を抽出します", "images", len(images), "backend", r.vision.Name())
	raw, err := r.vision.Describe(ctx, prompt, images)
	if err != nil {
		return fmt.Errorf("視覚特徴の抽出に失敗しました (%s): %w", name, err)
	}

	var res struct {
		Traits []string `json:"traits"`
	}
	if err := parser.DecodeJSON(raw, &res); err != nil {
		return fmt.Errorf("視覚特徴の解析に失敗しました (%s): %w", name, err)
	}
	traits := cleanList(res.Traits)
	if len(traits) == 0 {
		return fmt.Errorf("視覚特徴が空でした (%s)", name)
	}

	logger.InfoContext(ctx, "視覚特徴を登録しました", "traits", len(traits))
	return r.update(ctx, name, domain.EntryPatch{VisualTraits: traits})
}

// Find は名前を正典のエントリーに解決します。
func (r *EntityRegistry) Find(name string) (string, domain.CanonEntry, bool) {
	if r.kind == KindScenery {
		return r.store.FindScenery(name)
	}
	return r.store.FindCharacter(name)
}

// Has は名前が登録済みのエントリーと一致するかを返します。
// 正規化キーか表示名の一致だけを見て、部分一致は使いません。
func (r *EntityRegistry) Has(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if _, ok := r.exact(name); ok {
		return true
	}
	for _, display := range r.Names() {
		if strings.EqualFold(display, name) {
			return true
		}
	}
	return false
}

// Images は名前に対応する参照画像を返します。見つからない場合は nil です。
func (r *EntityRegistry) Images(name string) []string {
	_, entry, ok := r.Find(name)
	if !ok {
		return nil
	}
	return entry.RefImages
}

// Names は登録済みの表示名を返します。
func (r *EntityRegistry) Names() []string {
	if r.kind == KindScenery {
		return r.store.SceneryNames()
	}
	return r.store.CharacterNames()
}

// PromptSegment は画像生成プロンプトに埋め込む正典の断片を返します。
func (r *EntityRegistry) PromptSegment(name string) string {
	label, detailLabel := "Character", "Visual traits"
	if r.kind == KindScenery {
		label, detailLabel = "Scenery", "Architecture and environment details"
	}

	display, entry, ok := r.Find(name)
	if !ok {
		return fmt.Sprintf("%s: %s (no canonical data)", label, name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", label, display)
	fmt.Fprintf(&sb, "  - Description: %s\n", entry.Description)
	fmt.Fprintf(&sb, "  - %s:", detailLabel)
	if !entry.HasTraits() {
		sb.WriteString("\n    * No specific traits detected.")
	}
	for _, t := range entry.VisualTraits {
		sb.WriteString("\n    * ")
		sb.WriteString(t)
	}
	return sb.String()
}

func (r *EntityRegistry) update(ctx context.Context, name string, patch domain.EntryPatch) error {
	if r.kind == KindScenery {
		return r.store.UpdateScenery(ctx, name, patch)
	}
	return r.store.UpdateCharacter(ctx, name, patch)
}

func (r *EntityRegistry) exact(name string) (domain.CanonEntry, bool) {
	snap := r.store.Snapshot()
	entries := snap.Characters
	if r.kind == KindScenery {
		entries = snap.Sceneries
	}
	entry, ok := entries[NormalizeKey(name)]
	return entry, ok
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
