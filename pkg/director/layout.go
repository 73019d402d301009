package director

import (
	"math"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// confrontationKeywords は対峙の場面を示す語句です (英語・スペイン語)。
var confrontationKeywords = []string{
	"face-off", "face off", "faceoff", "confront", "standoff", "stand-off", "versus", " vs ", " vs.", "duel", "showdown",
	"enfrent", "cara a cara", "duelo", "contra ", "desafí",
}

// LayoutDesigner はページごとのパネル数とレイアウト傾向からコマの矩形を決める決定的なアルゴリズムです。
// 座標はページのコンテンツ領域に対するパーセントです。
type LayoutDesigner struct{}

// NewLayoutDesigner は LayoutDesigner を返します。
func NewLayoutDesigner() *LayoutDesigner {
	return &LayoutDesigner{}
}

// Assign はパネルをページごとにまとめ、未配置のパネルだけにテンプレートの矩形を割り当てます。
// 幅が正のパネル (手動で配置されたものを含む) は変更しません。戻り値は新しいスライスと割り当てた数です。
func (d *LayoutDesigner) Assign(panels domain.Panels, style domain.LayoutStyle) (domain.Panels, int) {
	out := panels.Clone()
	assigned := 0
	for _, idx := range out.IndicesByPage() {
		var boxes []domain.Layout
		for slot, i := range idx {
			if out[i].Layout.IsAssigned() {
				continue
			}
			if boxes == nil {
				boxes = d.Template(len(idx), style, pagePrompt(out, idx))
			}
			out[i].Layout = boxes[slot]
			assigned++
		}
	}
	return out, assigned
}

// Template は n 枚のパネルに対する矩形の列を返します。
func (d *LayoutDesigner) Template(n int, style domain.LayoutStyle, prompt string) []domain.Layout {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []domain.Layout{{X: 0, Y: 0, W: 100, H: 100}}
	case n == 2:
		if style == domain.LayoutGrid || (style == domain.LayoutDynamic && IsConfrontation(prompt)) {
			return []domain.Layout{{X: 0, Y: 0, W: 50, H: 100}, {X: 50, Y: 0, W: 50, H: 100}}
		}
		return rows(2)
	case n == 3:
		switch style {
		case domain.LayoutGrid:
			return []domain.Layout{{X: 0, Y: 0, W: 100, H: 50}, {X: 0, Y: 50, W: 50, H: 50}, {X: 50, Y: 50, W: 50, H: 50}}
		case domain.LayoutDynamic:
			return []domain.Layout{{X: 0, Y: 0, W: 100, H: 40}, {X: 0, Y: 40, W: 60, H: 60}, {X: 60, Y: 40, W: 40, H: 60}}
		}
		return rows(3)
	case n == 4:
		switch style {
		case domain.LayoutGrid:
			return twoColumns(4, false)
		case domain.LayoutDynamic:
			return []domain.Layout{{X: 0, Y: 0, W: 100, H: 30}, {X: 0, Y: 30, W: 50, H: 40}, {X: 50, Y: 30, W: 50, H: 40}, {X: 0, Y: 70, W: 100, H: 30}}
		}
		return rows(4)
	default:
		switch style {
		case domain.LayoutGrid:
			return twoColumns(n, false)
		case domain.LayoutDynamic:
			return twoColumns(n, true)
		}
		return rows(n)
	}
}

// IsConfrontation はプロンプトに対峙を示す語句が含まれるかを判定します。
func IsConfrontation(prompt string) bool {
	p := " " + strings.ToLower(prompt) + " "
	for _, kw := range confrontationKeywords {
		if strings.Contains(p, kw) {
			return true
		}
	}
	return false
}

// rows は全幅の行を n 段積み重ねます。
func rows(n int) []domain.Layout {
	h := round2(100 / float64(n))
	boxes := make([]domain.Layout, n)
	for i := range boxes {
		boxes[i] = domain.Layout{X: 0, Y: round2(float64(i) * 100 / float64(n)), W: 100, H: h}
	}
	return boxes
}

// twoColumns は 2 列のグリッドを作ります。奇数の場合は最後のパネルを全幅にします。
// staggered が true なら行ごとに 60/40 と 40/60 を交互に使います。
func twoColumns(n int, staggered bool) []domain.Layout {
	rowCount := (n + 1) / 2
	h := round2(100 / float64(rowCount))
	boxes := make([]domain.Layout, 0, n)
	for r := 0; r < rowCount; r++ {
		y := round2(float64(r) * 100 / float64(rowCount))
		if len(boxes) == n-1 {
			boxes = append(boxes, domain.Layout{X: 0, Y: y, W: 100, H: h})
			break
		}
		left := 50.0
		if staggered {
			left = 60
			if r%2 == 1 {
				left = 40
			}
		}
		boxes = append(boxes,
			domain.Layout{X: 0, Y: y, W: left, H: h},
			domain.Layout{X: left, Y: y, W: 100 - left, H: h},
		)
	}
	return boxes
}

func pagePrompt(panels domain.Panels, idx []int) string {
	var sb strings.Builder
	for _, i := range idx {
		sb.WriteString(panels[i].SceneDescription)
		sb.WriteString(" ")
		sb.WriteString(panels[i].Prompt)
		sb.WriteString(" ")
	}
	return sb.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
