package domain

import (
	"maps"
	"slices"
)

// CanonEntry はキャラクターまたは背景の正典データです。
type CanonEntry struct {
	Description  string   `json:"description"`
	RefImages    []string `json:"ref_images"`
	VisualTraits []string `json:"visual_traits"`
}

// HasTraits は視覚特徴が抽出済みかどうかを返します。
func (e CanonEntry) HasTraits() bool {
	return len(e.VisualTraits) > 0
}

// EntryPatch は CanonEntry への部分更新です。nil のフィールドは変更しません。
type EntryPatch struct {
	Description  *string
	RefImages    []string
	VisualTraits []string
}

// StyleCanon は正規化された画風トークンと元の画風テキストです。
type StyleCanon struct {
	Tokens []string `json:"style_tokens,omitempty"`
	Raw    string   `json:"raw,omitempty"`
}

// CanonMetadata は正規化キーから表示名への対応表を持ちます。
type CanonMetadata struct {
	OriginalKeys map[string]string `json:"original_keys"`
}

// Canon はプロジェクトごとの「設定資料」です。
// キャラクターと背景は正規化した名前をキーに保持します。
type Canon struct {
	Characters map[string]CanonEntry `json:"characters"`
	Sceneries  map[string]CanonEntry `json:"sceneries"`
	Style      StyleCanon            `json:"style"`
	Continuity ContinuityState       `json:"continuity"`
	Metadata   CanonMetadata         `json:"metadata"`
}

// NewCanon は空の Canon を返します。
func NewCanon() *Canon {
	c := &Canon{}
	c.EnsureMaps()
	return c
}

// EnsureMaps は nil のマップを初期化します。古い形式のドキュメントを読み込んだ直後に呼び出します。
func (c *Canon) EnsureMaps() {
	if c.Characters == nil {
		c.Characters = make(map[string]CanonEntry)
	}
	if c.Sceneries == nil {
		c.Sceneries = make(map[string]CanonEntry)
	}
	if c.Metadata.OriginalKeys == nil {
		c.Metadata.OriginalKeys = make(map[string]string)
	}
	c.Continuity.EnsureMaps()
}

// Clone はディープコピーを返します。
func (c *Canon) Clone() *Canon {
	out := &Canon{
		Characters: cloneEntries(c.Characters),
		Sceneries:  cloneEntries(c.Sceneries),
		Style: StyleCanon{
			Tokens: slices.Clone(c.Style.Tokens),
			Raw:    c.Style.Raw,
		},
		Continuity: c.Continuity.Clone(),
		Metadata:   CanonMetadata{OriginalKeys: maps.Clone(c.Metadata.OriginalKeys)},
	}
	out.EnsureMaps()
	return out
}

func cloneEntries(src map[string]CanonEntry) map[string]CanonEntry {
	out := make(map[string]CanonEntry, len(src))
	for k, v := range src {
		out[k] = CanonEntry{
			Description:  v.Description,
			RefImages:    slices.Clone(v.RefImages),
			VisualTraits: slices.Clone(v.VisualTraits),
		}
	}
	return out
}

// EntitySeed は呼び出し元が指定するキャラクター・背景の定義です。
type EntitySeed struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	ReferenceImages []string `json:"reference_images"`
}
