package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-comic-kit/pkg/canon"
	"github.com/shouni/go-comic-kit/pkg/dialogue"
	"github.com/shouni/go-comic-kit/pkg/director"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/ingest"
	"github.com/shouni/go-comic-kit/pkg/merger"
	"github.com/shouni/go-comic-kit/pkg/planner"
	"github.com/shouni/go-comic-kit/pkg/story"
	"github.com/shouni/go-comic-kit/pkg/world"
)

var (
	// ErrEmptyScript は計画に必要な台本がないことを表します。
	ErrEmptyScript = errors.New("台本が空です")
	// ErrPanelNotFound は選択的再生成の対象パネルが存在しないことを表します。
	ErrPanelNotFound = generator.ErrPanelNotFound
	// ErrInvalidAction はパイプラインが扱えないリクエストであることを表します。
	ErrInvalidAction = errors.New("不正なアクションです")
)

// Components は 1 プロジェクト分のパイプラインを構成する部品です。
type Components struct {
	Canon     *canon.Store
	Ingestor  *ingest.Ingestor
	Story     *story.Analyzer
	World     *world.Builder
	Planner   *planner.Planner
	Layout    *director.LayoutDesigner
	Generator *generator.Orchestrator
	Dialogue  *dialogue.Generator
	Merger    *merger.Merger
}

type stageFunc func(ctx context.Context, st *runState) error

// Pipeline は各ステージを状態機械として順に実行し、終端の結果を Sink へ送ります。
type Pipeline struct {
	c        Components
	handlers map[Stage]stageFunc
}

// New は部品を検証して Pipeline を初期化します。
func New(c Components) (*Pipeline, error) {
	if c.Canon == nil {
		return nil, fmt.Errorf("canon.Store は必須です")
	}
	if c.Planner == nil || c.Layout == nil || c.Generator == nil || c.Merger == nil {
		return nil, fmt.Errorf("Planner・Layout・Generator・Merger は必須です")
	}
	if c.Ingestor == nil || c.Story == nil || c.World == nil || c.Dialogue == nil {
		return nil, fmt.Errorf("Ingestor・Story・World・Dialogue は必須です")
	}

	p := &Pipeline{c: c}
	p.handlers = map[Stage]stageFunc{
		StageIngest:   p.ingest,
		StageStory:    p.understand,
		StageWorld:    p.buildWorld,
		StagePlan:     p.plan,
		StageLayout:   p.layout,
		StageGenerate: p.generate,
		StageBalloons: p.balloons,
		StageMerge:    p.merge,
	}
	return p, nil
}

// Execute はリクエストを実行し、終端メッセージを sink に送って返します。
// 実行が失敗した場合は Status が failed の結果とエラーの両方を返します。sink は nil でも構いません。
func (p *Pipeline) Execute(ctx context.Context, req domain.JobRequest, sink Sink) (domain.JobResult, error) {
	start := time.Now()
	st, runErr := p.run(ctx, &req)

	res := domain.JobResult{
		JobID:     req.JobID,
		ProjectID: req.ProjectID,
		Action:    req.Action,
		PanelID:   req.PanelID,
	}
	if runErr != nil {
		res.Status = domain.JobStatusFailed
		res.Error = runErr.Error()
		res.Project = domain.Project{ID: req.ProjectID, Status: domain.ProjectFailed, LastError: runErr.Error()}
	}

	logger := slog.With("project_id", req.ProjectID, "action", req.Action, "job_id", req.JobID)
	if runErr == nil {
		res.Status = domain.JobStatusCompleted
		res.Result = st.result()
		res.Project = domain.Project{ID: req.ProjectID, Status: domain.ProjectCompleted}
		logger.Info("パイプラインが完了しました", "duration", time.Since(start).Round(time.Millisecond))
	} else {
		logger.Error("パイプラインが失敗しました", "error", runErr, "duration", time.Since(start).Round(time.Millisecond))
	}
	runsTotal.WithLabelValues(string(req.Action), res.Status).Inc()

	if sink != nil {
		if err := sink.Emit(ctx, res); err != nil {
			logger.Error("結果の送信に失敗しました", "error", err)
			return res, errors.Join(runErr, fmt.Errorf("結果の送信に失敗しました: %w", err))
		}
	}
	return res, runErr
}

// run は開始状態から Done まで状態機械を回し、最終的な実行状態を返します。
func (p *Pipeline) run(ctx context.Context, req *domain.JobRequest) (*runState, error) {
	if err := req.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}
	if req.ProjectID != p.c.Canon.ProjectID() {
		return nil, fmt.Errorf("%w: プロジェクトが一致しません (%s != %s)", ErrInvalidAction, req.ProjectID, p.c.Canon.ProjectID())
	}

	st := &runState{req: *req}
	stage := entryStage(req.Action)
	for stage != StageDone {
		handler, ok := p.handlers[stage]
		if !ok {
			return nil, fmt.Errorf("%w: 未定義のステージです: %s", ErrInvalidAction, stage)
		}
		st.visited = append(st.visited, stage)

		start := time.Now()
		err := handler(ctx, st)
		stageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("%s ステージに失敗しました: %w", stage, err)
		}
		slog.Debug("ステージが完了しました", "project_id", req.ProjectID, "stage", stage, "duration", time.Since(start).Round(time.Millisecond))
		stage = nextStage(stage, st.req)
	}

	return st, nil
}
