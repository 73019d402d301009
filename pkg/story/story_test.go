package story

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

type scriptedText struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedText) Generate(context.Context, string, string) (string, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], err
	}
	return "", err
}

func pages(n int) domain.Script {
	var s domain.Script
	for i := n; i >= 1; i-- {
		s = append(s, domain.ScriptPage{Number: i, Text: strings.Repeat("x", 400)})
	}
	return s
}

func TestAnalyzer_Analyze(t *testing.T) {
	ctx := context.Background()
	pb := prompts.MustBuilder()

	t.Run("バッチごとに1回呼び出され、結果が集約されること", func(t *testing.T) {
		text := &scriptedText{responses: []string{
			`{"page_summaries": {"1": "intro"}, "panel_purposes": {"page_1_panel_1": "establishing"}}`,
			`{"page_summaries": {"page 11": "finale"}, "panel_purposes": {}}`,
		}}
		u, err := NewAnalyzer(text, pb, 10).Analyze(ctx, pages(12))
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if text.calls != 2 {
			t.Errorf("呼び出し回数 = %d, want 2", text.calls)
		}
		if u.PageSummaries[1] != "intro" || u.PageSummaries[11] != "finale" {
			t.Errorf("要約が集約されていません: %v", u.PageSummaries)
		}
		if u.PanelPurpose(domain.Panel{PageNumber: 1, OrderInPage: 0}) != "establishing" {
			t.Errorf("パネルの役割が取得できません: %v", u.PanelPurposes)
		}
		if u.Pages[0].Number != 1 || u.Pages[11].Number != 12 {
			t.Error("台本がページ順に並んでいません")
		}
	})

	t.Run("失敗したバッチは元テキストの切り詰めで補われること", func(t *testing.T) {
		text := &scriptedText{errs: []error{errors.New("timeout")}}
		u, err := NewAnalyzer(text, pb, 10).Analyze(ctx, pages(2))
		if err != nil {
			t.Fatalf("バッチ失敗はエラーにならないはずです: %v", err)
		}
		got := u.PageSummaries[2]
		if len([]rune(got)) != fallbackSummaryLen+len("...") {
			t.Errorf("フォールバック要約の長さ = %d", len([]rune(got)))
		}
		if !strings.HasPrefix(u.Summary(), "Page 1: ") {
			t.Errorf("Summary() = %q", u.Summary())
		}
	})
}
