package prompts

import (
	_ "embed"
)

// 推論呼び出しごとのテンプレートモードです。
const (
	ModeStory      = "story"
	ModeWorld      = "world"
	ModePlanner    = "planner"
	ModeContinuity = "continuity"
	ModeDialogue   = "dialogue"
	ModeStyle      = "style"
	ModeTraits     = "traits"
	ModeBlend      = "blend"
	ModeMerge      = "merge"
	ModePanel      = "panel"
	ModePanelEdit  = "panel_edit"
)

// PanelLine は台詞生成テンプレートに渡すパネルの要約です。
type PanelLine struct {
	ID               string
	PageNumber       int
	Characters       []string
	SceneDescription string
}

// TemplateData はプロンプトテンプレートに渡すデータ構造です。
// モードごとに使うフィールドだけを埋めて渡します。
type TemplateData struct {
	InputText    string // 台本・シーン説明・要約など、そのモードの主入力
	WorldSummary string
	CarryForward string // 前バッチ最後のパネルの要約
	KnownNames   []string
	Characters   []string
	Panels       []PanelLine
	StateJSON    string

	Name       string
	Kind       string // "character" or "scenery"
	ImageCount int

	PageStart   int
	PageEnd     int
	PageNumber  int
	PageSummary string
	PanelCount  int
	LayoutStyle string
	HasPrevious bool

	Style          string
	Scenery        string
	CharacterBlock string
	PanelPurpose   string
	AspectRatio    string
	Width          float64
	Height         float64
	Instructions   string
	PreviousPrompt string
}

var (
	//go:embed story.md
	StoryPrompt string
	//go:embed world.md
	WorldPrompt string
	//go:embed planner.md
	PlannerPrompt string
	//go:embed continuity.md
	ContinuityPrompt string
	//go:embed dialogue.md
	DialoguePrompt string
	//go:embed style.md
	StylePrompt string
	//go:embed traits.md
	TraitsPrompt string
	//go:embed blend.md
	BlendPrompt string
	//go:embed merge.md
	MergePrompt string
	//go:embed panel.md
	PanelPrompt string
	//go:embed panel_edit.md
	PanelEditPrompt string
)

// allTemplates はモードとテンプレート文字列を紐づけるマップです。
var allTemplates = map[string]string{
	ModeStory:      StoryPrompt,
	ModeWorld:      WorldPrompt,
	ModePlanner:    PlannerPrompt,
	ModeContinuity: ContinuityPrompt,
	ModeDialogue:   DialoguePrompt,
	ModeStyle:      StylePrompt,
	ModeTraits:     TraitsPrompt,
	ModeBlend:      BlendPrompt,
	ModeMerge:      MergePrompt,
	ModePanel:      PanelPrompt,
	ModePanelEdit:  PanelEditPrompt,
}
