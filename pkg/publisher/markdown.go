package publisher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

const (
	placeholder          = "placeholder.png"
	defaultNarrationName = "narration"
)

// BuildStoryboard は実行結果をページ・コマ順の Markdown 絵コンテにします。
// 失敗した実行ではエラー内容だけを記します。
func BuildStoryboard(res domain.JobResult, at time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", res.ProjectID)
	fmt.Fprintf(&sb, "- action: %s\n- status: %s\n- generated_at: %s\n\n", res.Action, res.Status, at.UTC().Format(time.RFC3339))

	if res.Result == nil {
		if res.Error != "" {
			fmt.Fprintf(&sb, "## Error\n\n%s\n", res.Error)
		}
		return sb.String()
	}

	r := res.Result
	if s := strings.TrimSpace(r.WorldSummary); s != "" {
		fmt.Fprintf(&sb, "## World\n\n%s\n\n", s)
	}

	merged := make(map[int]string, len(r.MergedPages))
	for _, mp := range r.MergedPages {
		merged[mp.PageNumber] = mp.ImageURL
	}

	panels := r.Panels.Clone()
	panels.SortByPosition()
	groups := panels.IndicesByPage()
	for _, page := range panels.PageNumbers() {
		fmt.Fprintf(&sb, "## Page %d\n\n", page)
		if s := strings.TrimSpace(r.PageSummaries[page]); s != "" {
			fmt.Fprintf(&sb, "> %s\n\n", s)
		}
		if img, ok := merged[page]; ok {
			fmt.Fprintf(&sb, "![page %d](%s)\n\n", page, img)
		}
		for _, i := range groups[page] {
			writePanel(&sb, panels[i])
		}
	}
	return sb.String()
}

func writePanel(sb *strings.Builder, p domain.Panel) {
	img := p.ImageURL
	if img == "" {
		img = placeholder
	}
	fmt.Fprintf(sb, "### Panel %d: %s\n", p.OrderInPage+1, img)
	fmt.Fprintf(sb, "- id: %s\n- status: %s\n", p.ID, p.Status)
	if p.Layout.IsAssigned() {
		fmt.Fprintf(sb, "- layout: x=%g y=%g w=%g h=%g\n", p.Layout.X, p.Layout.Y, p.Layout.W, p.Layout.H)
	}
	fmt.Fprintf(sb, "- scene: %s\n", strings.TrimSpace(p.SceneDescription))

	if len(p.Balloons) == 0 {
		sb.WriteString("- type: none\n\n")
		return
	}
	for _, b := range p.Balloons {
		speaker := defaultNarrationName
		if b.Character != nil && *b.Character != "" {
			speaker = *b.Character
		}
		fmt.Fprintf(sb, "- %s (%s, %s, %s): %s\n", speaker, speakerClass(speaker), b.Type, b.PositionHint, strings.TrimSpace(b.Text))
	}
	sb.WriteString("\n")
}

// speakerClass は日本語名などのマルチバイト文字を含む話者名を CSS 安全な ID に変換します。
func speakerClass(speaker string) string {
	h := sha256.Sum256([]byte(speaker))
	return "speaker-" + hex.EncodeToString(h[:])[:10]
}
