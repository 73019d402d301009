package prompts

import (
	"strings"
	"testing"
)

func TestTextPromptBuilder_Build(t *testing.T) {
	b, err := NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("初期化に失敗しました: %v", err)
	}

	t.Run("すべてのモードが空データで実行できること", func(t *testing.T) {
		for mode := range allTemplates {
			if _, err := b.Build(mode, TemplateData{}); err != nil {
				t.Errorf("モード %s の実行に失敗しました: %v", mode, err)
			}
		}
	})

	t.Run("不明なモードはエラーになること", func(t *testing.T) {
		if _, err := b.Build("unknown", TemplateData{}); err == nil {
			t.Error("エラーが返されませんでした")
		}
	})

	t.Run("既知の名前がプランナーに渡ること", func(t *testing.T) {
		got, err := b.Build(ModePlanner, TemplateData{
			InputText:  "Ana enters.",
			KnownNames: []string{"Ana Torres", "Warehouse"},
			PageStart:  1,
			PageEnd:    3,
			PanelCount: 6,
		})
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if !strings.Contains(got, "Ana Torres, Warehouse") || !strings.Contains(got, "pages 1 to 3") {
			t.Errorf("プロンプトに必要な情報が含まれていません:\n%s", got)
		}
	})

	t.Run("画像枚数で文言が切り替わること", func(t *testing.T) {
		one, _ := b.Build(ModeTraits, TemplateData{Name: "Ana", Kind: "character", ImageCount: 1})
		many, _ := b.Build(ModeTraits, TemplateData{Name: "Ana", Kind: "character", ImageCount: 3})
		if !strings.Contains(one, "this reference image") || !strings.Contains(many, "these 3 reference images") {
			t.Errorf("画像枚数の文言が不正です:\n%s\n%s", one, many)
		}
	})
}
