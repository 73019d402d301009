package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// batch は 1 回の推論で計画する台本ページの範囲と、対応する漫画ページの範囲です。
type batch struct {
	script    domain.Script
	pageStart int
	pageEnd   int
	panels    int
}

// splitBatches は台本ページを batchSize ごとに分け、漫画ページの範囲とパネル数を比例配分します。
func splitBatches(script domain.Script, batchSize, maxPages, required int) []batch {
	if len(script) <= batchSize {
		return []batch{{script: script, pageStart: 1, pageEnd: maxPages, panels: required}}
	}

	n := (len(script) + batchSize - 1) / batchSize
	batches := make([]batch, 0, n)
	assigned := 0
	for i := 0; i < n; i++ {
		from := i * batchSize
		to := min(from+batchSize, len(script))

		start := i*maxPages/n + 1
		end := (i + 1) * maxPages / n
		if end < start {
			end = start
		}
		end = min(end, maxPages)
		start = min(start, end)

		panels := (i+1)*required/n - assigned
		assigned += panels

		batches = append(batches, batch{
			script:    script[from:to],
			pageStart: start,
			pageEnd:   end,
			panels:    max(1, panels),
		})
	}
	return batches
}

// planBatches はバッチを順に計画し、各バッチ最後のパネルの要約を次のバッチへ引き継ぎます。
// 失敗したバッチはそのページ範囲を仮パネルで埋めます。
func (p *Planner) planBatches(ctx context.Context, logger *slog.Logger, in Input) (domain.Panels, error) {
	batches := splitBatches(in.Script, p.batchSize, in.MaxPages, in.RequiredPanels)

	var (
		all    domain.Panels
		carry  string
		failed int
	)
	for i, b := range batches {
		panels, err := p.planBatch(ctx, in, b, carry)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			failed++
			logger.WarnContext(ctx, "パネル計画のバッチに失敗したため仮パネルで補います",
				"batch", i+1, "pages", fmt.Sprintf("%d-%d", b.pageStart, b.pageEnd), "error", err)
			panels = p.placeholders(b.pageStart, b.pageEnd, b.panels)
		} else {
			panels.SortByPosition()
			carry = carryForward(panels[len(panels)-1])
		}
		all = append(all, panels...)
	}
	if failed == len(batches) {
		logger.WarnContext(ctx, "すべてのバッチが失敗しました", "batches", failed)
	}
	return all, nil
}

// carryForward は次のバッチに渡す直前パネルの要約です。
func carryForward(last domain.Panel) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Page %d: %s", last.PageNumber, last.SceneDescription)
	if len(last.Characters) > 0 {
		fmt.Fprintf(&sb, " (characters: %s)", strings.Join(last.Characters, ", "))
	}
	if last.Scenery != "" {
		fmt.Fprintf(&sb, " [scenery: %s]", last.Scenery)
	}
	return sb.String()
}
