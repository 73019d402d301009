package parser

import "regexp"

var (
	// jsonBlockRegex は ```json ... ``` 形式のコードフェンスの中身をキャプチャします。
	jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

	// PageHeadingRegex は "## Page 3" や "# Página 3" のようなページ見出し行を特定します。
	PageHeadingRegex = regexp.MustCompile(`(?im)^#{1,3}\s*(?:page|p[aá]gina|ページ)\s*(\d+)\b.*$`)

	// PageBreakRegex は "--- page ---" 形式の改ページ行を特定します。
	PageBreakRegex = regexp.MustCompile(`(?im)^\s*-{3,}\s*page\s*-{3,}\s*$`)
)
