package parser

import (
	"log/slog"
	"net/url"
	"path"
	"strings"
)

// ResolveLocator はストレージ相対パス (projects/...) を baseURL 配下の絶対ロケーターに変換します。
// スキーム付きの URL やローカルの絶対パスはそのまま返します。
func ResolveLocator(baseURL, locator string) string {
	locator = strings.TrimSpace(locator)
	if locator == "" || baseURL == "" || !strings.HasPrefix(locator, "projects/") {
		return locator
	}
	if strings.Contains(baseURL, "://") {
		return strings.TrimSuffix(baseURL, "/") + "/" + locator
	}
	return path.Join(baseURL, locator)
}

// PublicURL は gs:// のロケーターを公開 HTTPS URL に変換します。
// それ以外のスキームは変換せずに返します。
func PublicURL(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		slog.Warn("ロケーターの解析に失敗しました", "locator", locator, "error", err)
		return locator
	}
	if u.Scheme != "gs" {
		return locator
	}
	public := &url.URL{
		Scheme: "https",
		Host:   "storage.googleapis.com",
		Path:   "/" + path.Join(u.Host, u.Path),
	}
	return public.String()
}

// StripQuery はロケーターからクエリ文字列を取り除きます。
func StripQuery(locator string) string {
	if i := strings.IndexByte(locator, '?'); i >= 0 {
		return locator[:i]
	}
	return locator
}
