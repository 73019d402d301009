package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Action はジョブの種類です。
type Action string

const (
	ActionGenerate        Action = "generate"
	ActionRegeneratePanel Action = "regenerate_panel"
	ActionRegenerateMerge Action = "regenerate_merge"
)

const (
	DefaultMaxPages    = 3
	DefaultLayoutStyle = LayoutDynamic

	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"

	placeholderPanelsPerPage = 2
)

// LayoutStyle はコマ割りテンプレートの傾向です。
type LayoutStyle string

const (
	LayoutDynamic  LayoutStyle = "dynamic"
	LayoutVertical LayoutStyle = "vertical"
	LayoutGrid     LayoutStyle = "grid"
)

// ErrInvalidRequest はジョブリクエストの検証エラーです。
var ErrInvalidRequest = errors.New("不正なジョブリクエストです")

// ProjectStatus はプロジェクトのライフサイクル状態です。
type ProjectStatus string

const (
	ProjectIdle       ProjectStatus = "idle"
	ProjectGenerating ProjectStatus = "generating"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectFailed     ProjectStatus = "failed"
)

// Project は1件の作業単位です。正典とパネルはすべてプロジェクトに属します。
type Project struct {
	ID        string        `json:"id"`
	Status    ProjectStatus `json:"status"`
	LastError string        `json:"last_error,omitempty"`
}

// MergedPage は統合済みページ画像の所在です。
type MergedPage struct {
	PageNumber int    `json:"page_number"`
	ImageURL   string `json:"image_url"`
}

// JobRequest はパイプラインへの入力です。
type JobRequest struct {
	JobID             string           `json:"job_id,omitempty"`
	ProjectID         string           `json:"project_id"`
	Action            Action           `json:"action"`
	Sources           []string         `json:"sources"`
	MaxPages          int              `json:"max_pages"`
	MaxPanels         int              `json:"max_panels"`
	LayoutStyle       LayoutStyle      `json:"layout_style"`
	PlanOnly          bool             `json:"plan_only"`
	Panels            Panels           `json:"panels"`
	PanelID           string           `json:"panel_id,omitempty"`
	PageNumber        int              `json:"page_number,omitempty"`
	TargetPage        int              `json:"target_page,omitempty"`
	Instructions      string           `json:"instructions,omitempty"`
	Prompt            string           `json:"prompt,omitempty"`
	SceneDescription  string           `json:"scene_description,omitempty"`
	Balloons          []Balloon        `json:"balloons,omitempty"`
	CurrentImageURL   string           `json:"current_image_url,omitempty"`
	ReferenceImageURL string           `json:"reference_image_url,omitempty"`
	ReferenceImages   []string         `json:"reference_images,omitempty"`
	Characters        []EntitySeed     `json:"characters,omitempty"`
	Sceneries         []EntitySeed     `json:"sceneries,omitempty"`
	StyleGuide        string           `json:"style_guide,omitempty"`
	ContinuityState   *ContinuityState `json:"continuity_state,omitempty"`
	MergedPages       []MergedPage     `json:"merged_pages,omitempty"`
	GlobalContext     map[string]any   `json:"global_context,omitempty"`
}

// Normalize は既定値を補い、アクションごとの必須項目を検証します。
func (r *JobRequest) Normalize() error {
	r.ProjectID = strings.TrimSpace(r.ProjectID)
	if r.ProjectID == "" {
		return fmt.Errorf("%w: project_id は必須です", ErrInvalidRequest)
	}
	if r.Action == "" {
		r.Action = ActionGenerate
	}
	if r.MaxPages <= 0 {
		r.MaxPages = DefaultMaxPages
	}
	if r.MaxPanels < 0 {
		r.MaxPanels = 0
	}
	switch r.LayoutStyle {
	case LayoutDynamic, LayoutVertical, LayoutGrid:
	case "":
		r.LayoutStyle = DefaultLayoutStyle
	default:
		return fmt.Errorf("%w: 未対応の layout_style です: %q", ErrInvalidRequest, r.LayoutStyle)
	}

	switch r.Action {
	case ActionGenerate:
	case ActionRegeneratePanel:
		if r.PanelID == "" {
			return fmt.Errorf("%w: regenerate_panel には panel_id が必要です", ErrInvalidRequest)
		}
		if len(r.Panels) == 0 {
			return fmt.Errorf("%w: regenerate_panel には panels が必要です", ErrInvalidRequest)
		}
	case ActionRegenerateMerge:
		if len(r.Panels) == 0 {
			return fmt.Errorf("%w: regenerate_merge には panels が必要です", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: 未対応の action です: %q", ErrInvalidRequest, r.Action)
	}
	return nil
}

// RequiredPanelCount は計画時に最低限必要なパネル数です。
// max_panels が指定されていればその値、なければ max_pages の2倍です。
func (r JobRequest) RequiredPanelCount() int {
	if r.MaxPanels > 0 {
		return r.MaxPanels
	}
	pages := r.MaxPages
	if pages <= 0 {
		pages = DefaultMaxPages
	}
	return pages * placeholderPanelsPerPage
}

// RunResult は成功時に返される成果物です。
type RunResult struct {
	Panels          Panels          `json:"panels"`
	MergedPages     []MergedPage    `json:"merged_pages"`
	ContinuityState ContinuityState `json:"continuity_state"`
	PageSummaries   map[int]string  `json:"page_summaries,omitempty"`
	WorldSummary    string          `json:"world_summary,omitempty"`
}

// JobResult は呼び出し元へ送る終端メッセージです。
type JobResult struct {
	JobID     string     `json:"job_id,omitempty"`
	ProjectID string     `json:"project_id"`
	Action    Action     `json:"action"`
	PanelID   string     `json:"panel_id,omitempty"`
	Status    string     `json:"status"`
	Project   Project    `json:"project"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}
