package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/canon"
	"github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
)

type fakeText struct{}

func (fakeText) Generate(_ context.Context, prompt, _ string) (string, error) {
	if strings.HasPrefix(prompt, "You are a comic book storyboard artist") {
		return `{"panels": [{"page_number": 1, "scene_description": "Ana waits"}]}`, nil
	}
	return "{}", nil
}

type fakeImages struct{}

func (fakeImages) Generate(_ context.Context, req ai.GenerateRequest) (string, error) {
	return "gs://bucket/" + req.OutputKey, nil
}

func (fakeImages) Edit(_ context.Context, req ai.EditRequest) (string, error) {
	return "gs://bucket/" + req.OutputKey, nil
}

type fakeBlobs struct{}

func (fakeBlobs) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "gs://bucket/" + key, nil
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(_ context.Context, locator string) (ai.ImageData, error) {
	return ai.ImageData{Locator: locator, Data: []byte("Ana waits at the station.")}, nil
}

func (f fakeFetcher) FetchAll(ctx context.Context, locators []string) ([]ai.ImageData, []error) {
	out := make([]ai.ImageData, 0, len(locators))
	for _, l := range locators {
		img, _ := f.Fetch(ctx, l)
		out = append(out, img)
	}
	return out, nil
}

func newManager(t *testing.T, repo canon.Repository) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RateInterval = 0
	cfg.MergeRateInterval = 0
	m, err := New(ManagerArgs{
		Config:  cfg,
		Text:    fakeText{},
		Images:  fakeImages{},
		Canon:   repo,
		Blobs:   fakeBlobs{},
		Fetcher: fakeFetcher{},
	})
	if err != nil {
		t.Fatalf("Manager の初期化に失敗しました: %v", err)
	}
	return m
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(ManagerArgs{}); err == nil {
		t.Error("依存が空でもエラーになりませんでした")
	}
}

func TestManager_Execute(t *testing.T) {
	repo := canon.NewMemoryRepository()
	m := newManager(t, repo)

	var got []domain.JobResult
	sink := pipeline.SinkFunc(func(_ context.Context, r domain.JobResult) error {
		got = append(got, r)
		return nil
	})

	res, err := m.Execute(context.Background(), domain.JobRequest{
		ProjectID: "proj",
		Sources:   []string{"gs://bucket/script.txt"},
		MaxPages:  1,
		PlanOnly:  true,
	}, sink)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if res.Status != domain.JobStatusCompleted || len(got) != 1 {
		t.Errorf("status = %s, emitted = %d", res.Status, len(got))
	}
	if len(res.Result.Panels) == 0 {
		t.Error("パネルが計画されていません")
	}

	t.Run("前後に空白のあるプロジェクト ID でも実行できること", func(t *testing.T) {
		res, err := m.Execute(context.Background(), domain.JobRequest{
			ProjectID: " proj ",
			Sources:   []string{"gs://bucket/script.txt"},
			MaxPages:  1,
			PlanOnly:  true,
		}, nil)
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if res.Status != domain.JobStatusCompleted || res.ProjectID != "proj" {
			t.Errorf("status = %s, project_id = %q", res.Status, res.ProjectID)
		}
	})

	t.Run("不正なリクエストは失敗として送られること", func(t *testing.T) {
		got = nil
		_, err := m.Execute(context.Background(), domain.JobRequest{}, sink)
		if err == nil || len(got) != 1 || got[0].Status != domain.JobStatusFailed {
			t.Errorf("err = %v, emitted = %+v", err, got)
		}
	})
}

// brokenRepo は読み込みに失敗するリポジトリです。正典は空から始まります。
type brokenRepo struct{}

func (brokenRepo) Load(context.Context, string) (*domain.Canon, error) {
	return nil, errors.New("unavailable")
}

func (brokenRepo) Save(context.Context, string, *domain.Canon) error { return nil }

func TestManager_Pipeline(t *testing.T) {
	m := newManager(t, brokenRepo{})
	if _, err := m.Pipeline(context.Background(), "proj"); err != nil {
		t.Errorf("読み込みに失敗しても空の正典で構築されるはずです: %v", err)
	}
	if _, err := m.Pipeline(context.Background(), ""); err == nil {
		t.Error("空のプロジェクト ID でエラーになりませんでした")
	}
}

func TestManager_LockSerializesProject(t *testing.T) {
	m := newManager(t, canon.NewMemoryRepository())

	unlock := m.lock("proj")
	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		release := m.lock("proj")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("同じプロジェクトのロックが同時に取得されました")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	wg.Wait()

	other := m.lock("other")
	other()
}
