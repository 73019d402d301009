package parser

import (
	"errors"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Traits []string `json:"traits"`
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"コードフェンス付きの応答", "Here you go:\n```json\n{\"traits\": [\"red hair\"]}\n```"},
		{"言語指定のないコードフェンス", "```\n{\"traits\": [\"red hair\"]}\n```"},
		{"前後に説明文がある応答", "Sure! {\"traits\": [\"red hair\"]} Hope it helps."},
		{"JSON のみの応答", `{"traits": ["red hair"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name+"を解析できること", func(t *testing.T) {
			var p payload
			if err := DecodeJSON(tt.raw, &p); err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if len(p.Traits) != 1 || p.Traits[0] != "red hair" {
				t.Errorf("解析結果が不正です: %+v", p)
			}
		})
	}

	t.Run("空の応答は ErrNoJSON になること", func(t *testing.T) {
		var p payload
		if err := DecodeJSON("   ", &p); !errors.Is(err, ErrNoJSON) {
			t.Errorf("ErrNoJSON を期待しましたが %v でした", err)
		}
	})

	t.Run("壊れた JSON はエラーになること", func(t *testing.T) {
		var p payload
		if err := DecodeJSON("{traits: [", &p); err == nil {
			t.Error("エラーが返されませんでした")
		}
	})
}

func TestResolveLocator(t *testing.T) {
	t.Run("相対パスはベース URL 配下に解決されること", func(t *testing.T) {
		got := ResolveLocator("gs://bucket/", "projects/p1/ref.png")
		if got != "gs://bucket/projects/p1/ref.png" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("スキーム付き URL は変更されないこと", func(t *testing.T) {
		in := "https://example.com/a.png"
		if got := ResolveLocator("gs://bucket", in); got != in {
			t.Errorf("got %q", got)
		}
	})
	t.Run("gs ロケーターが公開 URL に変換されること", func(t *testing.T) {
		got := PublicURL("gs://bucket/projects/p1/a.png")
		if got != "https://storage.googleapis.com/bucket/projects/p1/a.png" {
			t.Errorf("got %q", got)
		}
	})
}

func TestFlexTypes(t *testing.T) {
	var p struct {
		Page  FlexInt     `json:"page_number"`
		Order FlexInt     `json:"order_in_page"`
		Chars FlexStrings `json:"characters"`
	}
	if err := DecodeJSON(`{"page_number": "2", "order_in_page": 1, "characters": "Ana, Bruno"}`, &p); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if p.Page != 2 || p.Order != 1 || len(p.Chars) != 2 || p.Chars[1] != "Bruno" {
		t.Errorf("解析結果が不正です: %+v", p)
	}
}
