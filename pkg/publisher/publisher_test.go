package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

type memoryBlobs struct {
	files map[string][]byte
}

func (m *memoryBlobs) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.files[key] = data
	return "gs://bucket/" + key, nil
}

func TestRunPublisher_Publish(t *testing.T) {
	blobs := &memoryBlobs{files: make(map[string][]byte)}
	p, err := NewRunPublisher(blobs)
	if err != nil {
		t.Fatalf("初期化に失敗しました: %v", err)
	}

	ana := "Ana"
	res := domain.JobResult{
		JobID:     "job1",
		ProjectID: "proj",
		Action:    domain.ActionGenerate,
		Status:    domain.JobStatusCompleted,
		Result: &domain.RunResult{
			Panels: domain.Panels{
				{ID: "b", PageNumber: 1, OrderInPage: 1, SceneDescription: "Ana runs", Status: domain.PanelGenerated},
				{ID: "a", PageNumber: 1, OrderInPage: 0, SceneDescription: "Ana waits", Status: domain.PanelGenerated, ImageURL: "gs://bucket/a.png",
					Balloons: []domain.Balloon{{Type: "speech", Character: &ana, Text: "hola", PositionHint: "top-left"}}},
			},
			MergedPages:   []domain.MergedPage{{PageNumber: 1, ImageURL: "gs://bucket/page_1.png"}},
			PageSummaries: map[int]string{1: "Ana escapes"},
		},
	}

	out, err := p.Publish(context.Background(), res)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	t.Run("実行ごとのキーに保存されること", func(t *testing.T) {
		if out.ResultURL != "gs://bucket/projects/proj/runs/job1/result.json" {
			t.Errorf("ResultURL = %q", out.ResultURL)
		}
		var got domain.JobResult
		if err := json.Unmarshal(blobs.files["projects/proj/runs/job1/result.json"], &got); err != nil || got.Status != domain.JobStatusCompleted {
			t.Errorf("保存された JSON が不正です: %v %+v", err, got)
		}
	})

	t.Run("絵コンテがページ・コマ順に並ぶこと", func(t *testing.T) {
		md := string(blobs.files["projects/proj/runs/job1/storyboard.md"])
		first, second := strings.Index(md, "Ana waits"), strings.Index(md, "Ana runs")
		if first < 0 || second < 0 || first > second {
			t.Errorf("コマの順序が不正です:\n%s", md)
		}
		for _, want := range []string{"## Page 1", "> Ana escapes", "![page 1](gs://bucket/page_1.png)", "hola", placeholder} {
			if !strings.Contains(md, want) {
				t.Errorf("%q が含まれていません:\n%s", want, md)
			}
		}
	})
}

func TestBuildStoryboard_Failed(t *testing.T) {
	md := BuildStoryboard(domain.JobResult{ProjectID: "proj", Status: domain.JobStatusFailed, Error: "台本が空です"}, time.Unix(0, 0))
	if !strings.Contains(md, "## Error") || !strings.Contains(md, "台本が空です") {
		t.Errorf("エラー内容が含まれていません:\n%s", md)
	}
}
