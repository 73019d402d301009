package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Attributes は属性名から値への対応です（服装、怪我、所持品、位置など）。
type Attributes map[string]string

// Pairs は値が空でない属性を "key: value" 形式でキー順に返します。
func (a Attributes) Pairs() []string {
	keys := slices.Sorted(maps.Keys(a))
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.TrimSpace(a[k])
		if v == "" {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s: %s", k, v))
	}
	return pairs
}

// ContinuityState はパネル間で保つべきキャラクターと環境の状態です。
type ContinuityState struct {
	Characters  map[string]Attributes `json:"characters"`
	Environment Attributes            `json:"environment"`
}

// NewContinuityState は空の状態を返します。
func NewContinuityState() ContinuityState {
	s := ContinuityState{}
	s.EnsureMaps()
	return s
}

// EnsureMaps は nil のマップを初期化します。
func (s *ContinuityState) EnsureMaps() {
	if s.Characters == nil {
		s.Characters = make(map[string]Attributes)
	}
	if s.Environment == nil {
		s.Environment = make(Attributes)
	}
}

// IsEmpty は追跡中の状態が何もないかどうかを返します。
func (s ContinuityState) IsEmpty() bool {
	return len(s.Characters) == 0 && len(s.Environment) == 0
}

// Clone はディープコピーを返します。
func (s ContinuityState) Clone() ContinuityState {
	out := ContinuityState{
		Characters:  make(map[string]Attributes, len(s.Characters)),
		Environment: maps.Clone(s.Environment),
	}
	for name, attrs := range s.Characters {
		out.Characters[name] = maps.Clone(attrs)
	}
	out.EnsureMaps()
	return out
}

// CharacterState はキャラクター名に対応する状態を返します。
// 完全一致を優先し、次に大文字小文字を無視した一致を探します。部分一致は行いません。
func (s ContinuityState) CharacterState(name string) (Attributes, bool) {
	if attrs, ok := s.Characters[name]; ok {
		return attrs, true
	}
	for _, key := range slices.Sorted(maps.Keys(s.Characters)) {
		if strings.EqualFold(key, name) {
			return s.Characters[key], true
		}
	}
	return nil, false
}
