package continuity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// ルートキーの別名です。推論結果が別言語のキーで返ることがあります。
var (
	characterKeys   = []string{"characters", "personajes", "personaje", "characters_state", "キャラクター"}
	environmentKeys = []string{"environment", "habitacion", "habitación", "entorno", "ambiente", "escenario", "環境"}
	wrapperKeys     = []string{"estado", "state", "continuity", "continuity_state"}
)

// Supervisor はパネルを処理するたびに連続性の状態を更新します。
type Supervisor struct {
	text    ai.TextGenerator
	prompts prompts.PromptBuilder
}

// NewSupervisor は Supervisor を初期化します。
func NewSupervisor(text ai.TextGenerator, pb prompts.PromptBuilder) *Supervisor {
	return &Supervisor{text: text, prompts: pb}
}

// Update はパネルのシーンと登場人物から新しい状態を求めます。
// 推論や解析に失敗した場合は元の状態をそのまま返します。
func (s *Supervisor) Update(ctx context.Context, state domain.ContinuityState, panel domain.Panel) domain.ContinuityState {
	logger := slog.With("stage", "continuity", "panel_id", panel.ID)
	state = state.Clone()

	if s.text == nil || strings.TrimSpace(panel.SceneDescription) == "" {
		return state
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		logger.WarnContext(ctx, "連続性の状態をシリアライズできませんでした", "error", err)
		return state
	}
	prompt, err := s.prompts.Build(prompts.ModeContinuity, prompts.TemplateData{
		StateJSON:  string(stateJSON),
		InputText:  panel.SceneDescription,
		Characters: panel.Characters,
	})
	if err != nil {
		logger.WarnContext(ctx, "連続性プロンプトの構築に失敗しました", "error", err)
		return state
	}

	raw, err := s.text.Generate(ctx, prompt, "")
	if err != nil {
		logger.WarnContext(ctx, "連続性の更新に失敗したため状態を維持します", "error", err)
		return state
	}
	update, err := Parse(raw)
	if err != nil {
		logger.WarnContext(ctx, "連続性の応答を解析できなかったため状態を維持します", "error", err)
		return state
	}

	merged := Merge(state, update)
	logger.DebugContext(ctx, "連続性を更新しました", "characters", len(merged.Characters), "environment", len(merged.Environment))
	return merged
}

// Parse は推論結果を連続性の状態に変換します。ルートキーの別名や余分な包みを吸収します。
func Parse(raw string) (domain.ContinuityState, error) {
	var root map[string]any
	if err := parser.DecodeJSON(raw, &root); err != nil {
		return domain.ContinuityState{}, err
	}
	root = unwrap(root)

	out := domain.NewContinuityState()
	found := false
	if v, ok := pick(root, characterKeys); ok {
		found = true
		if chars, ok := v.(map[string]any); ok {
			for name, attrs := range chars {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				a := make(domain.Attributes)
				flatten("", attrs, a)
				out.Characters[name] = a
			}
		}
	}
	if v, ok := pick(root, environmentKeys); ok {
		found = true
		flatten("", v, out.Environment)
	}
	if !found {
		return domain.ContinuityState{}, fmt.Errorf("連続性の応答に characters も environment も含まれていません")
	}
	return out, nil
}

// Merge は更新を状態に重ねます。更新に含まれない属性は維持し、空の値は無視します。
func Merge(state, update domain.ContinuityState) domain.ContinuityState {
	out := state.Clone()
	for name, attrs := range update.Characters {
		key := name
		for existing := range out.Characters {
			if strings.EqualFold(existing, name) {
				key = existing
				break
			}
		}
		if out.Characters[key] == nil {
			out.Characters[key] = make(domain.Attributes)
		}
		for k, v := range attrs {
			if strings.TrimSpace(v) != "" {
				out.Characters[key][k] = v
			}
		}
	}
	for k, v := range update.Environment {
		if strings.TrimSpace(v) != "" {
			out.Environment[k] = v
		}
	}
	return out
}

func unwrap(root map[string]any) map[string]any {
	if len(root) != 1 {
		return root
	}
	if v, ok := pick(root, wrapperKeys); ok {
		if inner, ok := v.(map[string]any); ok {
			return inner
		}
	}
	return root
}

func pick(m map[string]any, aliases []string) (any, bool) {
	for k, v := range m {
		for _, alias := range aliases {
			if strings.EqualFold(strings.TrimSpace(k), alias) {
				return v, true
			}
		}
	}
	return nil, false
}

// flatten は入れ子の値を "prefix key" 形式のキーに展開し、文字列に変換して格納します。
func flatten(prefix string, v any, out domain.Attributes) {
	switch val := v.(type) {
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(val)) {
			key := strings.TrimSpace(k)
			if prefix != "" {
				key = prefix + " " + key
			}
			flatten(key, val[k], out)
		}
	case nil:
	default:
		if prefix == "" {
			prefix = "details"
		}
		if s := stringify(val); s != "" {
			out[prefix] = s
		}
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		a := make(domain.Attributes)
		flatten("", val, a)
		return strings.Join(a.Pairs(), ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
