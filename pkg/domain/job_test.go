package domain

import (
	"errors"
	"testing"
)

func TestJobRequest_Normalize(t *testing.T) {
	t.Run("既定値が補われること", func(t *testing.T) {
		req := JobRequest{ProjectID: " p1 "}
		if err := req.Normalize(); err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if req.ProjectID != "p1" || req.Action != ActionGenerate || req.MaxPages != DefaultMaxPages || req.LayoutStyle != LayoutDynamic {
			t.Errorf("既定値が正しくありません: %+v", req)
		}
	})

	tests := []struct {
		name string
		req  JobRequest
	}{
		{"project_id がない場合", JobRequest{}},
		{"未知のアクション", JobRequest{ProjectID: "p", Action: "publish"}},
		{"未知のレイアウト", JobRequest{ProjectID: "p", LayoutStyle: "spiral"}},
		{"panel_id のないパネル再生成", JobRequest{ProjectID: "p", Action: ActionRegeneratePanel, Panels: Panels{{ID: "x"}}}},
		{"panels のない統合再実行", JobRequest{ProjectID: "p", Action: ActionRegenerateMerge}},
	}
	for _, tt := range tests {
		t.Run(tt.name+"はエラーになること", func(t *testing.T) {
			req := tt.req
			err := req.Normalize()
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("ErrInvalidRequest を期待しましたが %v でした", err)
			}
		})
	}
}

func TestJobRequest_RequiredPanelCount(t *testing.T) {
	t.Run("max_panels が優先されること", func(t *testing.T) {
		if got := (JobRequest{MaxPages: 3, MaxPanels: 7}).RequiredPanelCount(); got != 7 {
			t.Errorf("got %d, want 7", got)
		}
	})
	t.Run("max_panels がない場合はページ数の2倍になること", func(t *testing.T) {
		if got := (JobRequest{MaxPages: 4}).RequiredPanelCount(); got != 8 {
			t.Errorf("got %d, want 8", got)
		}
	})
}

func TestContinuityState_CharacterState(t *testing.T) {
	s := ContinuityState{Characters: map[string]Attributes{
		"Ana Torres": {"wounds": "cut on left arm"},
	}}

	t.Run("完全一致で取得できること", func(t *testing.T) {
		if _, ok := s.CharacterState("Ana Torres"); !ok {
			t.Error("完全一致で見つかりませんでした")
		}
	})
	t.Run("大文字小文字を無視して取得できること", func(t *testing.T) {
		attrs, ok := s.CharacterState("ana torres")
		if !ok || attrs["wounds"] != "cut on left arm" {
			t.Errorf("大文字小文字を無視した一致に失敗しました: %v", attrs)
		}
	})
	t.Run("部分一致では取得しないこと", func(t *testing.T) {
		if _, ok := s.CharacterState("Ana"); ok {
			t.Error("部分一致で状態が返されました")
		}
	})
}

func TestSeedFromName(t *testing.T) {
	a := SeedFromName("Ana Torres")
	if a != SeedFromName(" ana torres ") {
		t.Error("同じ名前から異なるシード値が生成されました")
	}
	if a < 0 {
		t.Errorf("シード値が負の数です: %d", a)
	}
	if PanelSeed(Panel{}) != nil {
		t.Error("キャラクターのいないパネルでシード値が返されました")
	}
}

func TestScript(t *testing.T) {
	s := Script{{Number: 2, Text: "b"}, {Number: 1, Text: "a"}}

	t.Run("ページ番号順に並ぶこと", func(t *testing.T) {
		o := s.Ordered()
		if o[0].Number != 1 || s[0].Number != 2 {
			t.Errorf("Ordered() の結果が不正です: %v (元: %v)", o, s)
		}
		if got := o.Text(); got != "--- Page 1 ---\na\n\n--- Page 2 ---\nb" {
			t.Errorf("Text() = %q", got)
		}
	})

	t.Run("空白だけの台本を判定できること", func(t *testing.T) {
		if !(Script{{Number: 1, Text: " \n"}}).IsBlank() || s.IsBlank() {
			t.Error("IsBlank() の判定が不正です")
		}
	})
}
