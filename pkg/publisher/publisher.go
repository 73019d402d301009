package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/domain"
)

// PublishResult は保存したファイルの所在です。
type PublishResult struct {
	ResultURL     string // result.json の所在
	StoryboardURL string // storyboard.md の所在
}

// RunPublisher は実行結果を JSON と Markdown の絵コンテとしてストレージへ保存します。
// pipeline.Sink を満たします。
type RunPublisher struct {
	writer ai.BlobWriter
	now    func() time.Time
}

// NewRunPublisher は RunPublisher を初期化します。
func NewRunPublisher(writer ai.BlobWriter) (*RunPublisher, error) {
	if writer == nil {
		return nil, fmt.Errorf("BlobWriter は必須です")
	}
	return &RunPublisher{writer: writer, now: time.Now}, nil
}

// Emit は終端メッセージを保存します。
func (p *RunPublisher) Emit(ctx context.Context, res domain.JobResult) error {
	_, err := p.Publish(ctx, res)
	return err
}

// Publish は projects/{id}/runs/{run}/ 配下に result.json と storyboard.md を書き出します。
// run はジョブ ID、なければ新しい ID です。
func (p *RunPublisher) Publish(ctx context.Context, res domain.JobResult) (PublishResult, error) {
	var out PublishResult
	runID := res.JobID
	if runID == "" {
		runID = uuid.NewString()
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return out, fmt.Errorf("実行結果のエンコードに失敗しました: %w", err)
	}
	out.ResultURL, err = p.writer.Put(ctx, asset.RunKey(res.ProjectID, runID, asset.DefaultResultFileName), data, "application/json")
	if err != nil {
		return out, fmt.Errorf("実行結果の書き込みに失敗しました: %w", err)
	}

	md := BuildStoryboard(res, p.now())
	out.StoryboardURL, err = p.writer.Put(ctx, asset.RunKey(res.ProjectID, runID, asset.DefaultStoryboardFileName), []byte(md), "text/markdown; charset=utf-8")
	if err != nil {
		return out, fmt.Errorf("markdownファイルの書き込みに失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "実行結果を保存しました",
		"project_id", res.ProjectID,
		"run_id", runID,
		"status", res.Status,
		"result", out.ResultURL,
	)
	return out, nil
}
