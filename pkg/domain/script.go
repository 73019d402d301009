package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ScriptPage は台本の 1 ページ分のテキストです。Number は 1 始まりです。
type ScriptPage struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Script は台本ページの列です。取得元によっては順不同で届きます。
type Script []ScriptPage

// Ordered はページ番号順に並べ替えたコピーを返します。同じ番号のページは出現順を保ちます。
func (s Script) Ordered() Script {
	out := slices.Clone(s)
	slices.SortStableFunc(out, func(a, b ScriptPage) int { return a.Number - b.Number })
	return out
}

// IsBlank は空白以外のテキストがないかどうかを返します。
func (s Script) IsBlank() bool {
	for _, p := range s {
		if strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

// Text はページ見出し付きで全文を連結します。
func (s Script) Text() string {
	var sb strings.Builder
	for i, p := range s {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n%s", p.Number, strings.TrimSpace(p.Text))
	}
	return sb.String()
}
