package canon

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var keyDisallowed = regexp.MustCompile(`[^a-zA-Z0-9\s_-]`)

// NormalizeKey は名前を正典のキーに変換します。
// 分音記号を取り除いて ASCII 英数字・空白・'_'・'-' だけを残し、空白を詰めます。大文字小文字は保持します。
// ASCII に落とすと空になる名前 (日本語名など) は、NFC 正規化したうえで空白だけを取り除きます。
func NormalizeKey(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	ascii := keyDisallowed.ReplaceAllString(toASCII(folded), "")
	if key := strings.Join(strings.Fields(ascii), ""); key != "" {
		return key
	}
	return strings.Join(strings.Fields(norm.NFC.String(name)), "")
}

func toASCII(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r < unicode.MaxASCII {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
