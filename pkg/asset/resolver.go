package asset

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/shouni/go-utils/urlpath"
)

const (
	// ProjectsDir はすべてのプロジェクト成果物を格納するルートディレクトリ名です。
	ProjectsDir = "projects"
	// DefaultCanonFileName は正典ドキュメントのファイル名です。
	DefaultCanonFileName = "canon.json"
	// DefaultResultFileName は実行結果 JSON のファイル名です。
	DefaultResultFileName = "result.json"
	// DefaultStoryboardFileName は実行結果 Markdown のファイル名です。
	DefaultStoryboardFileName = "storyboard.md"
	// DefaultPanelFileName はパネル画像の共通のベースファイル名です。
	DefaultPanelFileName = "panel.png"
	// DefaultPageFileName は統合ページ画像の共通のベースファイル名です。
	DefaultPageFileName = "page.png"
	// DefaultCollageFileName はページ統合の下絵となるコラージュ画像のファイル名です。
	DefaultCollageFileName = "collage.png"
)

var (
	// PageFileRegex は統合ページ画像 (page_1.png 等) に一致します
	PageFileRegex = createIndexedRegex(DefaultPageFileName)
	// CollageFileRegex はコラージュ画像 (collage_1.png 等) に一致します
	CollageFileRegex = createIndexedRegex(DefaultCollageFileName)

	unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// ProjectKey はプロジェクト配下の相対キーを組み立てます。
// 例: ProjectKey("p1", "canon", "canon.json") -> "projects/p1/canon/canon.json"
func ProjectKey(projectID string, elems ...string) string {
	parts := append([]string{ProjectsDir, safeSegment(projectID)}, elems...)
	return path.Join(parts...)
}

// CanonKey は正典ドキュメントのキーです。
func CanonKey(projectID string) string {
	return ProjectKey(projectID, "canon", DefaultCanonFileName)
}

// PanelImageKey はパネル画像のキーです。再生成のたびに新しいキーになるよう revision を含めます。
func PanelImageKey(projectID, panelID, revision string) string {
	name := safeSegment(panelID)
	if revision != "" {
		name += "_" + safeSegment(revision)
	}
	return ProjectKey(projectID, "panels", name+path.Ext(DefaultPanelFileName))
}

// PageImageKey は統合ページ画像のキーです (page_1.png 等)。
func PageImageKey(projectID, revision string, pageNumber int) (string, error) {
	return indexedKey(projectID, revision, DefaultPageFileName, pageNumber)
}

// CollageKey はコラージュ画像のキーです (collage_1.png 等)。
func CollageKey(projectID, revision string, pageNumber int) (string, error) {
	return indexedKey(projectID, revision, DefaultCollageFileName, pageNumber)
}

// RunKey は実行結果ファイルのキーです。
func RunKey(projectID, runID, fileName string) string {
	return ProjectKey(projectID, "runs", safeSegment(runID), fileName)
}

func indexedKey(projectID, revision, fileName string, index int) (string, error) {
	dir := ProjectKey(projectID, "pages")
	if revision != "" {
		dir = path.Join(dir, safeSegment(revision))
	}
	return GenerateIndexedPath(path.Join(dir, fileName), index)
}

// ResolveOutputPath は、ベースとなるディレクトリパスとファイル名から、
// GCS/ローカルを考慮した最終的な出力パスを生成します。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	return urlpath.ResolveOutputPath(baseDir, fileName)
}

// ResolveBaseURL は、入力パス（URLまたはローカルパス）から
// 親ディレクトリのパスを解決し、末尾がセパレータで終わるように正規化します。
func ResolveBaseURL(rawPath string) string {
	return urlpath.ResolveBaseURL(rawPath)
}

// GenerateIndexedPath は、指定されたベースパスの拡張子の前に連番を挿入し、
// 新しいパス文字列を生成します。index は1以上の整数である必要があります。
// 例: "path/to/page.png", 1 -> "path/to/page_1.png"
func GenerateIndexedPath(basePath string, index int) (string, error) {
	if index < 1 {
		return "", fmt.Errorf("インデックスは1以上である必要があります: %d", index)
	}
	return urlpath.GenerateIndexedPath(basePath, index)
}

func safeSegment(s string) string {
	s = unsafeSegment.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// createIndexedRegex は、ファイル名に基づきインデックス付きファイル用の正規表現を生成します。
// 例: "page.png" -> ^page_\d+\.png$
func createIndexedRegex(fileName string) *regexp.Regexp {
	ext := path.Ext(fileName)
	baseName := strings.TrimSuffix(fileName, ext)
	pattern := fmt.Sprintf(`^%s_\d+%s$`, regexp.QuoteMeta(baseName), regexp.QuoteMeta(ext))
	return regexp.MustCompile(pattern)
}
