package composer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/canon"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

type fakeText struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeText) Generate(_ context.Context, prompt, _ string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func newComposer(t *testing.T, text *fakeText) *Composer {
	t.Helper()
	ctx := context.Background()
	pb := prompts.MustBuilder()
	store := canon.NewEmpty(canon.NewMemoryRepository(), "p1")
	chars := canon.NewCharacterRegistry(store, nil, nil, pb)
	scenes := canon.NewSceneryRegistry(store, nil, nil, pb)
	if err := chars.Upsert(ctx, domain.EntitySeed{Name: "Ana Torres", Description: "tall detective"}); err != nil {
		t.Fatalf("登録に失敗しました: %v", err)
	}
	if err := scenes.Upsert(ctx, domain.EntitySeed{Name: "Warehouse", Description: "abandoned dock warehouse"}); err != nil {
		t.Fatalf("登録に失敗しました: %v", err)
	}
	style := canon.NewStyleRegistry(store, nil, pb)
	if text == nil {
		return New(nil, pb, chars, scenes, style)
	}
	return New(text, pb, chars, scenes, style)
}

func TestComposer_Layers(t *testing.T) {
	c := newComposer(t, nil)
	state := domain.ContinuityState{
		Characters:  map[string]domain.Attributes{"ana torres": {"wounds": "cut on left arm"}},
		Environment: domain.Attributes{"lighting": "flickering lamp"},
	}
	panel := domain.Panel{
		ID:               "p1",
		SceneDescription: "Ana searches the crates",
		Characters:       []string{"Ana"},
		Scenery:          "warehouse",
		Layout:           domain.Layout{W: 100, H: 40},
	}

	l := c.Layers(Input{Panel: panel, Continuity: state})

	t.Run("正典の表示名で連続性が引かれること", func(t *testing.T) {
		if !strings.Contains(l.Characters, "Character: Ana Torres") || !strings.Contains(l.Characters, "[Continuity: wounds: cut on left arm]") {
			t.Errorf("キャラクター層が不正です:\n%s", l.Characters)
		}
	})
	t.Run("背景に環境の連続性が付くこと", func(t *testing.T) {
		if !strings.Contains(l.Scenery, "abandoned dock warehouse") || !strings.Contains(l.Scenery, "(Environment continuity: lighting: flickering lamp)") {
			t.Errorf("背景層が不正です:\n%s", l.Scenery)
		}
	})
	t.Run("レイアウトからアスペクト比が決まること", func(t *testing.T) {
		if l.AspectRatio != "16:9" {
			t.Errorf("AspectRatio = %q", l.AspectRatio)
		}
	})
	t.Run("画風の上書きが優先されること", func(t *testing.T) {
		p := panel
		p.PanelStyle = "noir ink wash"
		if got := c.Layers(Input{Panel: p}).Style; got != "STYLE OVERRIDE: noir ink wash" {
			t.Errorf("Style = %q", got)
		}
	})
}

func TestComposer_Compose(t *testing.T) {
	panel := domain.Panel{ID: "p1", SceneDescription: "Ana opens the door", Characters: []string{"Ana Torres"}}

	t.Run("合成結果を返すこと", func(t *testing.T) {
		text := &fakeText{response: "  A detective opens a door  "}
		c := newComposer(t, text)
		if got := c.Compose(context.Background(), Input{Panel: panel}); got != "A detective opens a door" {
			t.Errorf("Compose() = %q", got)
		}
	})

	t.Run("推論が失敗したら層の連結を返すこと", func(t *testing.T) {
		text := &fakeText{err: errors.New("boom")}
		c := newComposer(t, text)
		got := c.Compose(context.Background(), Input{Panel: panel})
		if !strings.Contains(got, "Scene: Ana opens the door") || !strings.Contains(got, "Character: Ana Torres") {
			t.Errorf("フォールバックが不正です:\n%s", got)
		}
	})

	t.Run("編集中のパネルは差分の指示枠を使うこと", func(t *testing.T) {
		text := &fakeText{response: "now the door is open"}
		c := newComposer(t, text)
		p := panel
		p.Status = domain.PanelEditing
		p.Instructions = "open the door wider"
		p.Prompt = "old prompt"
		c.Compose(context.Background(), Input{Panel: p})
		if len(text.prompts) != 1 || !strings.Contains(text.prompts[0], "EDITING an existing panel") || !strings.Contains(text.prompts[0], "old prompt") {
			t.Errorf("編集用のプロンプトが使われていません: %v", text.prompts)
		}
	})

	t.Run("世界の要約は500文字に切り詰められること", func(t *testing.T) {
		text := &fakeText{response: "ok"}
		c := newComposer(t, text)
		c.Compose(context.Background(), Input{Panel: panel, WorldSummary: strings.Repeat("x", 2000)})
		if strings.Contains(text.prompts[0], strings.Repeat("x", 501)) {
			t.Error("世界の要約が切り詰められていません")
		}
	})
}
