package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/ai"
)

type fakeLoader map[string]string

func (f fakeLoader) Fetch(_ context.Context, locator string) (ai.ImageData, error) {
	text, ok := f[locator]
	if !ok {
		return ai.ImageData{}, errors.New("not found")
	}
	return ai.ImageData{Locator: locator, Data: []byte(text)}, nil
}

func TestIngestor_Split(t *testing.T) {
	in := New(nil, 10)

	tests := []struct {
		name string
		text string
		want int
	}{
		{"改ページ文字で分割されること", "one\fttwo\f\fthree", 3},
		{"区切り行で分割されること", "one\n--- page ---\ntwo\n---PAGE---\nthree", 3},
		{"ページ見出しで分割されること", "## Page 1\nfoo\n## Page 2\nbar", 2},
		{"固定文字数で分割されること", strings.Repeat("abcde", 5), 3},
		{"空白だけなら空になること", " \n ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.Split(tt.text); len(got) != tt.want {
				t.Errorf("Split() = %q, want %d pages", got, tt.want)
			}
		})
	}

	t.Run("行の境界で切られること", func(t *testing.T) {
		got := in.Split("aaaaaaa\nbbbbbbb\n")
		if got[0] != "aaaaaaa" {
			t.Errorf("1ページ目 = %q", got[0])
		}
	})
}

func TestIngestor_Ingest(t *testing.T) {
	loader := fakeLoader{
		"gs://b/a.txt": "Page one\fPage two",
		"gs://b/b.md":  "Page three",
	}
	res, err := New(loader, 0).Ingest(context.Background(), []string{
		"gs://b/a.txt", "gs://b/ref.PNG", "gs://b/missing.txt", "gs://b/b.md", " ",
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if len(res.Images) != 1 || res.Images[0] != "gs://b/ref.PNG" {
		t.Errorf("Images = %v", res.Images)
	}
	if len(res.Script) != 3 || res.Script[2].Number != 3 || res.Script[2].Text != "Page three" {
		t.Errorf("Script = %+v", res.Script)
	}
}
