package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

type fakeQueue struct {
	jobs []domain.JobRequest
	err  error
}

func (f *fakeQueue) PublishJob(_ context.Context, req domain.JobRequest) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, req)
	return nil
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("生成ジョブを受け付けて 202 を返すこと", func(t *testing.T) {
		q := &fakeQueue{}
		w := do(NewRouter(q), http.MethodPost, "/generate", `{"project_id": "proj", "sources": ["gs://b/s.txt"]}`)
		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var res acceptedResponse
		if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.JobID == "" {
			t.Errorf("応答が不正なのだ: %v %+v", err, res)
		}
		if len(q.jobs) != 1 || q.jobs[0].Action != domain.ActionGenerate || q.jobs[0].MaxPages != domain.DefaultMaxPages {
			t.Errorf("投入されたジョブが不正なのだ: %+v", q.jobs)
		}
	})

	t.Run("パネル再生成はアクションがエンドポイントで決まること", func(t *testing.T) {
		q := &fakeQueue{}
		w := do(NewRouter(q), http.MethodPost, "/regenerate-panel", `{"project_id": "proj", "action": "generate", "panel_id": "a", "panels": [{"id": "a"}]}`)
		if w.Code != http.StatusAccepted || q.jobs[0].Action != domain.ActionRegeneratePanel {
			t.Errorf("status = %d, jobs = %+v", w.Code, q.jobs)
		}
	})

	tests := []struct {
		name, path, body string
	}{
		{"壊れた JSON", "/generate", `{`},
		{"project_id なし", "/generate", `{}`},
		{"panel_id なしのパネル再生成", "/regenerate-panel", `{"project_id": "proj", "panels": [{"id": "a"}]}`},
		{"panels なしの統合再実行", "/regenerate-merge", `{"project_id": "proj"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name+"は 400 になること", func(t *testing.T) {
			q := &fakeQueue{}
			w := do(NewRouter(q), http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusBadRequest || len(q.jobs) != 0 {
				t.Errorf("status = %d, jobs = %d", w.Code, len(q.jobs))
			}
		})
	}

	t.Run("キューのエラーは 500 になること", func(t *testing.T) {
		w := do(NewRouter(&fakeQueue{err: errors.New("down")}), http.MethodPost, "/generate", `{"project_id": "proj"}`)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("ヘルスチェックとメトリクスを返すこと", func(t *testing.T) {
		r := NewRouter(&fakeQueue{})
		if w := do(r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
			t.Errorf("/healthz status = %d", w.Code)
		}
		if w := do(r, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
			t.Errorf("/metrics status = %d", w.Code)
		}
	})
}
