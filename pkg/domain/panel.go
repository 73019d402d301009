package domain

import (
	"fmt"
	"slices"
	"strings"
)

// PanelStatus はパネル画像の生成状態です。
type PanelStatus string

const (
	PanelPending   PanelStatus = "pending"
	PanelEditing   PanelStatus = "editing"
	PanelGenerated PanelStatus = "generated"
)

// PlaceholderDescription はプランナーのフォールバックで生成される仮パネルの説明文です。
const PlaceholderDescription = "Placeholder panel: scene to be defined"

// Layout はページのコンテンツ領域に対するパーセント単位の矩形です。
type Layout struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// IsAssigned は矩形がすでに配置済みかどうかを返します。
// 幅が正の値であれば、自動レイアウトで上書きしてはいけません。
func (l Layout) IsAssigned() bool {
	return l.W > 0
}

// AspectRatio は矩形の縦横比から画像生成に渡すアスペクト比を決定します。
// 未配置の場合は 50x50 とみなします。
func (l Layout) AspectRatio() string {
	w, h := l.W, l.H
	if w <= 0 || h <= 0 {
		w, h = 50, 50
	}
	switch {
	case w/h > 1.2:
		return "16:9"
	case h/w > 1.2:
		return "9:16"
	default:
		return "1:1"
	}
}

// Balloon はパネルに配置される台詞・ナレーションです。
type Balloon struct {
	Type         string  `json:"type"`
	Character    *string `json:"character"`
	Text         string  `json:"text"`
	PositionHint string  `json:"position_hint"`
}

// Panel は漫画の1コマです。
type Panel struct {
	ID                string      `json:"id"`
	PageNumber        int         `json:"page_number"`
	OrderInPage       int         `json:"order_in_page"`
	Prompt            string      `json:"prompt"`
	SceneDescription  string      `json:"scene_description"`
	Script            string      `json:"script,omitempty"`
	Characters        []string    `json:"characters"`
	Scenery           string      `json:"scenery,omitempty"`
	ImageURL          string      `json:"image_url,omitempty"`
	Status            PanelStatus `json:"status"`
	Layout            Layout      `json:"layout"`
	Balloons          []Balloon   `json:"balloons"`
	Instructions      string      `json:"instructions,omitempty"`
	PanelStyle        string      `json:"panel_style,omitempty"`
	CurrentImageURL   string      `json:"current_image_url,omitempty"`
	ReferenceImageURL string      `json:"reference_image_url,omitempty"`
}

// PanelKey はストーリー理解の結果を引くためのキー (page_{n}_panel_{m}) を返します。
// m は 1 始まりです。
func PanelKey(pageNumber, orderInPage int) string {
	return fmt.Sprintf("page_%d_panel_%d", pageNumber, orderInPage+1)
}

// Key はパネル自身の PanelKey を返します。
func (p Panel) Key() string {
	return PanelKey(p.PageNumber, p.OrderInPage)
}

// IsPlaceholder は説明が空、またはフォールバックで作られた仮パネルかどうかを判定します。
func (p Panel) IsPlaceholder() bool {
	desc := strings.TrimSpace(p.SceneDescription)
	if desc == "" {
		return true
	}
	return strings.Contains(strings.ToLower(desc), "placeholder")
}

// NeedsGeneration は画像生成の対象となる状態かどうかを返します。
func (p Panel) NeedsGeneration() bool {
	return p.Status == PanelPending || p.Status == PanelEditing || p.Status == ""
}

// Clone はスライスを含めたディープコピーを返します。
func (p Panel) Clone() Panel {
	c := p
	c.Characters = slices.Clone(p.Characters)
	if p.Balloons != nil {
		c.Balloons = make([]Balloon, len(p.Balloons))
		for i, b := range p.Balloons {
			c.Balloons[i] = b
			if b.Character != nil {
				name := *b.Character
				c.Balloons[i].Character = &name
			}
		}
	}
	return c
}

// Panels はパネル列に対する補助メソッドを提供します。
type Panels []Panel

// Clone はすべてのパネルをディープコピーします。
func (ps Panels) Clone() Panels {
	if ps == nil {
		return nil
	}
	out := make(Panels, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	return out
}

// SortByPosition はページ番号、ページ内順序の順に安定ソートします。
func (ps Panels) SortByPosition() {
	slices.SortStableFunc(ps, func(a, b Panel) int {
		if a.PageNumber != b.PageNumber {
			return a.PageNumber - b.PageNumber
		}
		return a.OrderInPage - b.OrderInPage
	})
}

// PageNumbers は重複のないページ番号を昇順で返します。
func (ps Panels) PageNumbers() []int {
	seen := make(map[int]struct{})
	var pages []int
	for _, p := range ps {
		if _, ok := seen[p.PageNumber]; ok {
			continue
		}
		seen[p.PageNumber] = struct{}{}
		pages = append(pages, p.PageNumber)
	}
	slices.Sort(pages)
	return pages
}

// IndicesByPage はページ番号ごとにパネルのインデックスをページ内順序で返します。
func (ps Panels) IndicesByPage() map[int][]int {
	groups := make(map[int][]int)
	for i, p := range ps {
		groups[p.PageNumber] = append(groups[p.PageNumber], i)
	}
	for page := range groups {
		idx := groups[page]
		slices.SortStableFunc(idx, func(a, b int) int {
			return ps[a].OrderInPage - ps[b].OrderInPage
		})
	}
	return groups
}

// OnPage は指定ページのパネルをページ内順序で返します。
func (ps Panels) OnPage(page int) Panels {
	var out Panels
	for _, p := range ps {
		if p.PageNumber == page {
			out = append(out, p)
		}
	}
	out.SortByPosition()
	return out
}

// IndexOf は ID に一致するパネルのインデックスを返します。
func (ps Panels) IndexOf(id string) int {
	for i, p := range ps {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// UniqueCharacters はパネル群に登場するキャラクター名を出現順に重複なく返します。
func (ps Panels) UniqueCharacters() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, p := range ps {
		for _, name := range p.Characters {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
