package domain

import (
	"testing"
)

func TestLayout_AspectRatio(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		want   string
	}{
		{"横長なら16:9になること", Layout{W: 100, H: 40}, "16:9"},
		{"縦長なら9:16になること", Layout{W: 30, H: 80}, "9:16"},
		{"ほぼ正方形なら1:1になること", Layout{W: 50, H: 45}, "1:1"},
		{"未配置なら1:1になること", Layout{}, "1:1"},
		{"境界値1.2ちょうどは1:1になること", Layout{W: 60, H: 50}, "1:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.layout.AspectRatio(); got != tt.want {
				t.Errorf("AspectRatio() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPanel_IsPlaceholder(t *testing.T) {
	t.Run("空の説明は仮パネルとみなすこと", func(t *testing.T) {
		if !(Panel{SceneDescription: "  "}).IsPlaceholder() {
			t.Error("空白のみの説明が仮パネルと判定されませんでした")
		}
	})
	t.Run("フォールバックの説明は仮パネルとみなすこと", func(t *testing.T) {
		if !(Panel{SceneDescription: PlaceholderDescription}).IsPlaceholder() {
			t.Error("フォールバックの説明が仮パネルと判定されませんでした")
		}
	})
	t.Run("実際の説明は仮パネルではないこと", func(t *testing.T) {
		if (Panel{SceneDescription: "Ana enters the warehouse"}).IsPlaceholder() {
			t.Error("通常の説明が仮パネルと判定されました")
		}
	})
}

func TestPanels_SortAndGroup(t *testing.T) {
	ps := Panels{
		{ID: "c", PageNumber: 2, OrderInPage: 0},
		{ID: "b", PageNumber: 1, OrderInPage: 1},
		{ID: "a", PageNumber: 1, OrderInPage: 0},
	}

	t.Run("ページと順序で並び替えられること", func(t *testing.T) {
		sorted := ps.Clone()
		sorted.SortByPosition()
		got := sorted[0].ID + sorted[1].ID + sorted[2].ID
		if got != "abc" {
			t.Errorf("並び順 = %q, want %q", got, "abc")
		}
	})

	t.Run("ページ番号が昇順で重複なく返ること", func(t *testing.T) {
		pages := ps.PageNumbers()
		if len(pages) != 2 || pages[0] != 1 || pages[1] != 2 {
			t.Errorf("PageNumbers() = %v", pages)
		}
	})

	t.Run("ページごとのインデックスが順序どおりであること", func(t *testing.T) {
		groups := ps.IndicesByPage()
		if idx := groups[1]; len(idx) != 2 || ps[idx[0]].ID != "a" || ps[idx[1]].ID != "b" {
			t.Errorf("1ページ目のインデックスが不正です: %v", idx)
		}
	})
}

func TestPanel_Clone(t *testing.T) {
	name := "Ana"
	orig := Panel{
		Characters: []string{"Ana"},
		Balloons:   []Balloon{{Type: "speech", Character: &name, Text: "hola"}},
	}
	c := orig.Clone()
	c.Characters[0] = "Bruno"
	*c.Balloons[0].Character = "Bruno"

	if orig.Characters[0] != "Ana" {
		t.Error("Characters スライスが共有されています")
	}
	if *orig.Balloons[0].Character != "Ana" {
		t.Error("Balloon の Character ポインタが共有されています")
	}
}
