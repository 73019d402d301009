package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON は応答から JSON を取り出せなかったことを表します。
var ErrNoJSON = errors.New("AIの応答に JSON が含まれていません")

// ExtractJSON は AI の応答から JSON 部分を取り出します。
// コードフェンス、最初の '{' から最後の '}' まで、応答全体の順に試します。
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	matches := jsonBlockRegex.FindStringSubmatch(raw)
	if len(matches) > 1 {
		return matches[1]
	}

	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first != -1 && last != -1 && last > first {
		return raw[first : last+1]
	}

	return raw
}

// DecodeJSON は寛容な抽出を行ったうえで v にデコードします。
func DecodeJSON(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return ErrNoJSON
	}
	rawJSON := ExtractJSON(raw)
	if err := json.Unmarshal([]byte(rawJSON), v); err != nil {
		return fmt.Errorf("AIからの応答に含まれるJSONの解析に失敗しました (応答抜粋: %q): %w", Truncate(raw, 200), err)
	}
	return nil
}

// Truncate は文字単位で maxLen を超える部分を切り詰めます。
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
