package merger

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	data, err := Encode(img)
	if err != nil {
		t.Fatalf("PNG の生成に失敗しました: %v", err)
	}
	return data
}

type fakeFetcher struct {
	data []byte
}

func (f *fakeFetcher) Fetch(_ context.Context, locator string) (ai.ImageData, error) {
	if strings.Contains(locator, "missing") {
		return ai.ImageData{}, errors.New("not found")
	}
	return ai.ImageData{Locator: locator, Data: f.data, MimeType: "image/png"}, nil
}

type fakeBlobs struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeBlobs) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "gs://bucket/" + key, nil
}

type fakeImages struct {
	edits []ai.EditRequest
}

func (f *fakeImages) Generate(context.Context, ai.GenerateRequest) (string, error) {
	return "", errors.New("unexpected")
}

func (f *fakeImages) Edit(_ context.Context, req ai.EditRequest) (string, error) {
	f.edits = append(f.edits, req)
	return "gs://bucket/" + req.OutputKey, nil
}

type fakeVision struct {
	err error
}

func (f *fakeVision) Name() string { return "fake" }

func (f *fakeVision) Describe(context.Context, string, []ai.ImageData) (string, error) {
	return "soft teal grading", f.err
}

func threePages() domain.Panels {
	var ps domain.Panels
	for page := 3; page >= 1; page-- {
		ps = append(ps, domain.Panel{
			ID: "p" + string(rune('0'+page)), PageNumber: page, Status: domain.PanelGenerated,
			ImageURL: "gs://bucket/panel.png", Layout: domain.Layout{W: 100, H: 100},
		})
	}
	return ps
}

func newMerger(t *testing.T, vision ai.VisionGenerator) (*Merger, *fakeImages) {
	t.Helper()
	images := &fakeImages{}
	m, err := New(images, vision, &fakeFetcher{data: pngBytes(t)}, &fakeBlobs{}, prompts.MustBuilder(), NewCollageRenderer(200, 300, 20.0/800.0), nil)
	if err != nil {
		t.Fatalf("初期化に失敗しました: %v", err)
	}
	return m, images
}

func TestMerger_Chaining(t *testing.T) {
	m, images := newMerger(t, &fakeVision{})
	out, err := m.Merge(context.Background(), Input{ProjectID: "proj", Panels: threePages()})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(out) != 3 || len(images.edits) != 3 {
		t.Fatalf("統合結果 = %d, 呼び出し = %d", len(out), len(images.edits))
	}

	t.Run("1ページ目は他ページの成果物を参照しないこと", func(t *testing.T) {
		if len(images.edits[0].ContextImages) != 0 {
			t.Errorf("1ページ目の文脈 = %v", images.edits[0].ContextImages)
		}
	})

	t.Run("2ページ目は1ページ目の統合結果を文脈に含むこと", func(t *testing.T) {
		ctx := images.edits[1].ContextImages
		if len(ctx) != 1 || ctx[0] != out[0].ImageURL {
			t.Errorf("2ページ目の文脈 = %v, want [%s]", ctx, out[0].ImageURL)
		}
		if !strings.Contains(images.edits[1].Prompt, "previous finished page") {
			t.Error("前ページの指示がプロンプトにありません")
		}
	})

	t.Run("コラージュを起点に編集すること", func(t *testing.T) {
		for _, e := range images.edits {
			if !strings.Contains(e.SourceImage, "collage") || !strings.Contains(e.Prompt, "soft teal grading") {
				t.Errorf("編集リクエストが不正です: %+v", e)
			}
		}
	})
}

func TestMerger_SinglePageUsesExisting(t *testing.T) {
	m, images := newMerger(t, &fakeVision{err: errors.New("all backends down")})
	existing := []domain.MergedPage{{PageNumber: 1, ImageURL: "gs://bucket/old_page_1.png"}}

	out, err := m.Merge(context.Background(), Input{ProjectID: "proj", Panels: threePages(), Pages: []int{2}, Existing: existing})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(images.edits) != 1 {
		t.Fatalf("呼び出し = %d, want 1", len(images.edits))
	}
	if ctx := images.edits[0].ContextImages; len(ctx) != 1 || ctx[0] != "gs://bucket/old_page_1.png" {
		t.Errorf("既存の1ページ目が文脈に含まれていません: %v", ctx)
	}
	if !strings.Contains(images.edits[0].Prompt, prompts.DefaultBlendDescription) {
		t.Error("画像解析の失敗時に既定のブレンド指示が使われていません")
	}
	if len(out) != 2 || out[0].PageNumber != 1 || out[1].PageNumber != 2 {
		t.Errorf("統合結果 = %v", out)
	}
}

func TestMerger_NoImages(t *testing.T) {
	m, _ := newMerger(t, nil)
	panels := domain.Panels{{ID: "a", PageNumber: 1, ImageURL: "gs://bucket/missing.png"}}
	if _, err := m.Merge(context.Background(), Input{ProjectID: "proj", Panels: panels}); err == nil {
		t.Error("画像のないページでエラーになりませんでした")
	}
}

func TestCollageRenderer(t *testing.T) {
	r := NewCollageRenderer(800, 800, 20.0/800.0)

	t.Run("余白を考慮して矩形が計算されること", func(t *testing.T) {
		got := r.Box(domain.Layout{X: 0, Y: 0, W: 50, H: 50})
		if want := image.Rect(20, 20, 400, 400); got != want {
			t.Errorf("Box() = %v, want %v", got, want)
		}
	})

	t.Run("はみ出した矩形に合わせてキャンバスが広がること", func(t *testing.T) {
		img := r.Render(domain.Panels{{ID: "a", Layout: domain.Layout{X: 0, Y: 80, W: 100, H: 50}}}, nil)
		if img.Bounds().Dy() <= 800 {
			t.Errorf("キャンバスの高さ = %d", img.Bounds().Dy())
		}
	})

	t.Run("画像が矩形に描画されること", func(t *testing.T) {
		src, _ := Decode(pngBytes(t))
		img := r.Render(domain.Panels{{ID: "a", Layout: domain.Layout{W: 50, H: 50}}}, map[string]image.Image{"a": src})
		if c := color.RGBAModel.Convert(img.At(200, 200)).(color.RGBA); c.R < 150 || c.G > 50 {
			t.Errorf("矩形の中央の色 = %v", c)
		}
		if c := color.RGBAModel.Convert(img.At(600, 600)).(color.RGBA); c.R != 255 || c.G != 255 {
			t.Errorf("背景の色 = %v", c)
		}
	})
}
