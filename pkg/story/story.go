package story

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

const (
	defaultBatchSize   = 10
	fallbackSummaryLen = 300
)

// Understanding はストーリー理解の結果です。後段では補助的な文脈として扱います。
type Understanding struct {
	PageSummaries map[int]string
	PanelPurposes map[string]string
	// Pages はページ番号順に並べ直した台本です。
	Pages domain.Script
}

// Summary はページ要約を番号順に連結した物語の要約を返します。
func (u Understanding) Summary() string {
	var lines []string
	for _, n := range slices.Sorted(maps.Keys(u.PageSummaries)) {
		if s := strings.TrimSpace(u.PageSummaries[n]); s != "" {
			lines = append(lines, fmt.Sprintf("Page %d: %s", n, s))
		}
	}
	return strings.Join(lines, "\n")
}

// PanelPurpose は page_{n}_panel_{m} に対応するパネルの物語上の役割を返します。
func (u Understanding) PanelPurpose(p domain.Panel) string {
	return u.PanelPurposes[p.Key()]
}

// Analyzer は長い台本をバッチに分け、ページ要約とパネルの役割を抽出します。
type Analyzer struct {
	text      ai.TextGenerator
	prompts   prompts.PromptBuilder
	batchSize int
}

// NewAnalyzer は Analyzer を初期化します。batchSize が 0 以下なら 10 ページ単位です。
func NewAnalyzer(text ai.TextGenerator, pb prompts.PromptBuilder, batchSize int) *Analyzer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Analyzer{text: text, prompts: pb, batchSize: batchSize}
}

// Analyze は台本をページ順に並べ直し、バッチごとに 1 回の推論で要約します。
// バッチの失敗は致命的ではなく、そのページは元テキストを切り詰めた要約で補います。
func (a *Analyzer) Analyze(ctx context.Context, script domain.Script) (Understanding, error) {
	start := time.Now()
	logger := slog.With("stage", "story")

	u := Understanding{
		PageSummaries: make(map[int]string),
		PanelPurposes: make(map[string]string),
		Pages:         script.Ordered(),
	}

	for batch := range slices.Chunk(u.Pages, a.batchSize) {
		if err := ctx.Err(); err != nil {
			return u, err
		}
		summaries, purposes, err := a.analyzeBatch(ctx, batch)
		if err != nil {
			logger.WarnContext(ctx, "ストーリー理解のバッチに失敗したため元テキストで補います",
				"from", batch[0].Number, "to", batch[len(batch)-1].Number, "error", err)
		}
		for _, p := range batch {
			if s := strings.TrimSpace(summaries[p.Number]); s != "" {
				u.PageSummaries[p.Number] = s
				continue
			}
			u.PageSummaries[p.Number] = parser.Truncate(strings.TrimSpace(p.Text), fallbackSummaryLen)
		}
		maps.Copy(u.PanelPurposes, purposes)
	}

	logger.InfoContext(ctx, "ストーリー理解が完了しました",
		"pages", len(u.Pages),
		"purposes", len(u.PanelPurposes),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return u, nil
}

type batchResponse struct {
	PageSummaries map[string]string `json:"page_summaries"`
	PanelPurposes map[string]string `json:"panel_purposes"`
}

func (a *Analyzer) analyzeBatch(ctx context.Context, batch domain.Script) (map[int]string, map[string]string, error) {
	prompt, err := a.prompts.Build(prompts.ModeStory, prompts.TemplateData{
		InputText: batch.Text(),
		PageStart: batch[0].Number,
		PageEnd:   batch[len(batch)-1].Number,
	})
	if err != nil {
		return nil, nil, err
	}

	raw, err := a.text.Generate(ctx, prompt, "")
	if err != nil {
		return nil, nil, err
	}
	var res batchResponse
	if err := parser.DecodeJSON(raw, &res); err != nil {
		return nil, nil, err
	}

	summaries := make(map[int]string, len(res.PageSummaries))
	for k, v := range res.PageSummaries {
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.ToLower(k), "page")))
		if err != nil {
			continue
		}
		summaries[n] = v
	}
	return summaries, res.PanelPurposes, nil
}
