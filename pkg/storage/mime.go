package storage

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/parser"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".gif":  {},
}

// IsImage はロケーターの拡張子が画像かどうかを判定します。
func IsImage(locator string) bool {
	_, ok := imageExtensions[ext(locator)]
	return ok
}

// DetectMimeType は拡張子、なければ内容から MIME タイプを推定します。
func DetectMimeType(locator string, data []byte) string {
	switch ext(locator) {
	case ".jpg", ".jpeg", ".jfif":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	if t := mime.TypeByExtension(ext(locator)); strings.HasPrefix(t, "image/") {
		return t
	}
	if len(data) > 0 {
		if t := http.DetectContentType(data); strings.HasPrefix(t, "image/") {
			return t
		}
	}
	return "image/png"
}

func ext(locator string) string {
	return strings.ToLower(path.Ext(parser.StripQuery(locator)))
}
