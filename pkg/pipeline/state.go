package pipeline

import (
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/story"
)

// Stage はパイプラインの状態です。
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageStory    Stage = "story"
	StageWorld    Stage = "world"
	StagePlan     Stage = "plan"
	StageLayout   Stage = "layout"
	StageGenerate Stage = "generate"
	StageBalloons Stage = "balloons"
	StageMerge    Stage = "merge"
	StageDone     Stage = "done"
	StageError    Stage = "error"
)

// runState は 1 回の実行で各ステージが読み書きする状態です。
type runState struct {
	req           domain.JobRequest
	script        domain.Script
	sourceImages  []string
	understanding story.Understanding
	worldSummary  string
	panels        domain.Panels
	continuity    domain.ContinuityState
	merged        []domain.MergedPage
	visited       []Stage
}

// entryStage はアクションごとの開始状態を返します。
func entryStage(action domain.Action) Stage {
	switch action {
	case domain.ActionRegeneratePanel:
		return StageGenerate
	case domain.ActionRegenerateMerge:
		return StageMerge
	default:
		return StageIngest
	}
}

// nextStage は現在の状態から次の状態を決めます。
func nextStage(current Stage, req domain.JobRequest) Stage {
	switch current {
	case StageIngest:
		return StageStory
	case StageStory:
		return StageWorld
	case StageWorld:
		return StagePlan
	case StagePlan:
		return StageLayout
	case StageLayout:
		if req.PlanOnly {
			return StageDone
		}
		return StageGenerate
	case StageGenerate:
		if req.Action == domain.ActionRegeneratePanel {
			return StageDone
		}
		return StageBalloons
	case StageBalloons:
		return StageMerge
	default:
		return StageDone
	}
}

func (st *runState) result() *domain.RunResult {
	res := &domain.RunResult{
		Panels:          st.panels,
		MergedPages:     st.merged,
		ContinuityState: st.continuity,
		WorldSummary:    st.worldSummary,
	}
	if len(st.understanding.PageSummaries) > 0 {
		res.PageSummaries = st.understanding.PageSummaries
	}
	if res.Panels == nil {
		res.Panels = domain.Panels{}
	}
	if res.MergedPages == nil {
		res.MergedPages = []domain.MergedPage{}
	}
	res.ContinuityState.EnsureMaps()
	return res
}
