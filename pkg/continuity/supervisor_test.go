package continuity

import (
	"context"
	"errors"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

type fakeText struct {
	response string
	err      error
}

func (f *fakeText) Generate(context.Context, string, string) (string, error) {
	return f.response, f.err
}

func TestParse(t *testing.T) {
	t.Run("別言語のルートキーと包みを吸収すること", func(t *testing.T) {
		raw := "```json\n{\"estado\": {\"personajes\": {\"Ana\": {\"wounds\": \"cut\", \"objects\": [\"gun\", \"torch\"]}}, \"habitacion\": {\"zone\": {\"desk\": \"papers scattered\"}, \"lighting\": \"dim\"}}}\n```"
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if got.Characters["Ana"]["wounds"] != "cut" || got.Characters["Ana"]["objects"] != "gun, torch" {
			t.Errorf("キャラクターの状態が不正です: %v", got.Characters)
		}
		if got.Environment["zone desk"] != "papers scattered" || got.Environment["lighting"] != "dim" {
			t.Errorf("環境の状態が不正です: %v", got.Environment)
		}
	})

	t.Run("どちらのキーもない場合はエラーになること", func(t *testing.T) {
		if _, err := Parse(`{"foo": "bar"}`); err == nil {
			t.Error("エラーが返りませんでした")
		}
	})

	t.Run("数値や真偽値は文字列に変換されること", func(t *testing.T) {
		got, err := Parse(`{"environment": {"clock": 3, "door_open": true}}`)
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if got.Environment["clock"] != "3" || got.Environment["door_open"] != "true" {
			t.Errorf("変換結果が不正です: %v", got.Environment)
		}
	})
}

func TestMerge(t *testing.T) {
	state := domain.ContinuityState{
		Characters:  map[string]domain.Attributes{"Ana": {"clothing": "red coat", "wounds": "none"}},
		Environment: domain.Attributes{"lighting": "day"},
	}
	update := domain.ContinuityState{
		Characters:  map[string]domain.Attributes{"ana": {"wounds": "cut on arm", "clothing": ""}},
		Environment: domain.Attributes{"weather": "rain"},
	}
	got := Merge(state, update)

	if got.Characters["Ana"]["clothing"] != "red coat" || got.Characters["Ana"]["wounds"] != "cut on arm" {
		t.Errorf("キャラクターのマージが不正です: %v", got.Characters)
	}
	if _, dup := got.Characters["ana"]; dup {
		t.Error("大文字小文字違いのキャラクターが重複しました")
	}
	if got.Environment["lighting"] != "day" || got.Environment["weather"] != "rain" {
		t.Errorf("環境のマージが不正です: %v", got.Environment)
	}
	if state.Characters["Ana"]["wounds"] != "none" {
		t.Error("元の状態が変更されました")
	}
}

func TestSupervisor_Update(t *testing.T) {
	pb := prompts.MustBuilder()
	state := domain.ContinuityState{Characters: map[string]domain.Attributes{"Ana": {"wounds": "none"}}}
	panel := domain.Panel{ID: "p", SceneDescription: "Ana is cut by glass", Characters: []string{"Ana"}}

	t.Run("推論結果が状態に反映されること", func(t *testing.T) {
		s := NewSupervisor(&fakeText{response: `{"characters": {"Ana": {"wounds": "glass cut"}}}`}, pb)
		got := s.Update(context.Background(), state, panel)
		if got.Characters["Ana"]["wounds"] != "glass cut" {
			t.Errorf("状態が更新されていません: %v", got.Characters)
		}
	})

	t.Run("失敗した場合は元の状態を返すこと", func(t *testing.T) {
		for _, f := range []*fakeText{{err: errors.New("boom")}, {response: "not json"}} {
			got := NewSupervisor(f, pb).Update(context.Background(), state, panel)
			if got.Characters["Ana"]["wounds"] != "none" {
				t.Errorf("状態が変わりました: %v", got.Characters)
			}
		}
	})
}
