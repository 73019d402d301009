package canon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// Store はプロジェクトの正典 (キャラクター・背景・画風・継続性) を保持します。
// すべての更新は即座にリポジトリへ書き込まれます (write-through)。
type Store struct {
	mu        sync.RWMutex
	repo      Repository
	projectID string
	data      *domain.Canon
}

// Open はリポジトリから正典を読み込んで Store を返します。
// ドキュメントが存在しない場合や読み込みに失敗した場合は空の正典から始めます。
func Open(ctx context.Context, repo Repository, projectID string) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("Repository は必須です")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID は必須です")
	}
	s := &Store{repo: repo, projectID: projectID}
	s.Load(ctx)
	return s, nil
}

// NewEmpty は既存のドキュメントを読まずに空の正典で Store を作ります。
func NewEmpty(repo Repository, projectID string) *Store {
	return &Store{repo: repo, projectID: projectID, data: domain.NewCanon()}
}

// ProjectID はこの正典が属するプロジェクトの ID です。
func (s *Store) ProjectID() string {
	return s.projectID
}

// Load はリポジトリから正典を読み直します。失敗時は空の正典になります。
func (s *Store) Load(ctx context.Context) {
	c, err := s.repo.Load(ctx, s.projectID)
	switch {
	case errors.Is(err, ErrNotFound):
		slog.InfoContext(ctx, "正典が見つからないため新規作成します", "project_id", s.projectID)
		c = domain.NewCanon()
	case err != nil:
		slog.WarnContext(ctx, "正典の読み込みに失敗したため空の正典から始めます", "project_id", s.projectID, "error", err)
		c = domain.NewCanon()
	}
	c.EnsureMaps()

	s.mu.Lock()
	s.data = c
	s.mu.Unlock()
}

// Save は現在の正典をリポジトリへ書き込みます。
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	snapshot := s.data.Clone()
	s.mu.RUnlock()

	if err := s.repo.Save(ctx, s.projectID, snapshot); err != nil {
		return fmt.Errorf("正典の保存に失敗しました (project: %s): %w", s.projectID, err)
	}
	return nil
}

// Snapshot は正典のディープコピーを返します。
func (s *Store) Snapshot() *domain.Canon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// UpdateCharacter はキャラクターの正典を部分更新して保存します。
func (s *Store) UpdateCharacter(ctx context.Context, name string, patch domain.EntryPatch) error {
	if err := s.updateEntry(name, patch, func(c *domain.Canon) map[string]domain.CanonEntry { return c.Characters }); err != nil {
		return err
	}
	return s.Save(ctx)
}

// UpdateScenery は背景の正典を部分更新して保存します。
func (s *Store) UpdateScenery(ctx context.Context, name string, patch domain.EntryPatch) error {
	if err := s.updateEntry(name, patch, func(c *domain.Canon) map[string]domain.CanonEntry { return c.Sceneries }); err != nil {
		return err
	}
	return s.Save(ctx)
}

// UpdateStyle は画風の正典を置き換えて保存します。
func (s *Store) UpdateStyle(ctx context.Context, style domain.StyleCanon) error {
	s.mu.Lock()
	s.data.Style = domain.StyleCanon{
		Tokens: slices.Clone(style.Tokens),
		Raw:    style.Raw,
	}
	s.mu.Unlock()
	return s.Save(ctx)
}

// UpdateContinuity は最新の継続性状態を正典に記録して保存します。
func (s *Store) UpdateContinuity(ctx context.Context, state domain.ContinuityState) error {
	s.mu.Lock()
	s.data.Continuity = state.Clone()
	s.mu.Unlock()
	return s.Save(ctx)
}

// Continuity は正典に記録された継続性状態のコピーを返します。
func (s *Store) Continuity() domain.ContinuityState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Continuity.Clone()
}

// Style は画風の正典のコピーを返します。
func (s *Store) Style() domain.StyleCanon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.StyleCanon{Tokens: slices.Clone(s.data.Style.Tokens), Raw: s.data.Style.Raw}
}

// updateEntry は視覚特徴がすでにある場合は上書きしません。
func (s *Store) updateEntry(name string, patch domain.EntryPatch, pick func(*domain.Canon) map[string]domain.CanonEntry) error {
	name = strings.TrimSpace(name)
	key := NormalizeKey(name)
	if key == "" {
		return fmt.Errorf("正典の名前が空です")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := pick(s.data)
	entry := entries[key]
	if patch.Description != nil {
		entry.Description = *patch.Description
	}
	if patch.RefImages != nil {
		entry.RefImages = slices.Clone(patch.RefImages)
	}
	if len(patch.VisualTraits) > 0 && !entry.HasTraits() {
		entry.VisualTraits = slices.Clone(patch.VisualTraits)
	}
	entries[key] = entry
	s.data.Metadata.OriginalKeys[key] = name
	return nil
}

// FindCharacter はキャラクターを名前で解決し、表示名と正典データを返します。
func (s *Store) FindCharacter(name string) (string, domain.CanonEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(name, s.data.Characters)
}

// FindScenery は背景を名前で解決し、表示名と正典データを返します。
func (s *Store) FindScenery(name string) (string, domain.CanonEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(name, s.data.Sceneries)
}

// find は 1) 正規化キーの完全一致 2) 表示名の大文字小文字を無視した一致
// 3) 表示名との双方向の部分一致、の順に探し、最初に見つかったものを返します。
func (s *Store) find(name string, entries map[string]domain.CanonEntry) (string, domain.CanonEntry, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.CanonEntry{}, false
	}
	original := s.data.Metadata.OriginalKeys

	key := NormalizeKey(name)
	if entry, ok := entries[key]; ok {
		display := original[key]
		if display == "" {
			display = key
		}
		return display, entry, true
	}

	keys := slices.Sorted(maps.Keys(original))
	for _, k := range keys {
		if _, ok := entries[k]; ok && strings.EqualFold(original[k], name) {
			return original[k], entries[k], true
		}
	}

	lower := strings.ToLower(name)
	for _, k := range keys {
		if _, ok := entries[k]; !ok {
			continue
		}
		display := strings.ToLower(original[k])
		if display == "" {
			continue
		}
		if strings.Contains(display, lower) || strings.Contains(lower, display) {
			return original[k], entries[k], true
		}
	}
	return "", domain.CanonEntry{}, false
}

// CharacterNames はキャラクターの表示名をソートして返します。
func (s *Store) CharacterNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names(s.data.Characters)
}

// SceneryNames は背景の表示名をソートして返します。
func (s *Store) SceneryNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names(s.data.Sceneries)
}

func (s *Store) names(entries map[string]domain.CanonEntry) []string {
	names := make([]string, 0, len(entries))
	for k := range entries {
		if display := s.data.Metadata.OriginalKeys[k]; display != "" {
			names = append(names, display)
		} else {
			names = append(names, k)
		}
	}
	slices.Sort(names)
	return names
}
