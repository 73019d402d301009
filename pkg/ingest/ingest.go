package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/storage"
)

// DefaultChunkSize は改ページのないテキストを分割する文字数です。
const DefaultChunkSize = 3000

// Loader はソースのバイト列を取得する契約です。storage.Fetcher が満たします。
type Loader interface {
	Fetch(ctx context.Context, locator string) (ai.ImageData, error)
}

// Result は取り込みの結果です。
type Result struct {
	Script domain.Script
	Images []string
}

// Ingestor はソースのロケーターを台本ページと画像ロケーターに振り分けます。
type Ingestor struct {
	loader    Loader
	chunkSize int
}

// New は Ingestor を初期化します。chunkSize が 0 以下なら 3000 文字です。
func New(loader Loader, chunkSize int) *Ingestor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Ingestor{loader: loader, chunkSize: chunkSize}
}

// Ingest は画像の拡張子を持つソースを画像として、それ以外を UTF-8 テキストとして読み込みます。
// 読み込めないソースはログに残してスキップします。ページ番号はソースをまたいで連番です。
func (i *Ingestor) Ingest(ctx context.Context, sources []string) (Result, error) {
	logger := slog.With("stage", "ingest")
	var res Result

	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if storage.IsImage(src) {
			res.Images = append(res.Images, src)
			continue
		}
		if i.loader == nil {
			return res, fmt.Errorf("テキストソースの読み込みには Loader が必要です")
		}

		data, err := i.loader.Fetch(ctx, src)
		if err != nil {
			logger.WarnContext(ctx, "ソースの読み込みに失敗したためスキップします", "source", src, "error", err)
			continue
		}
		if !utf8.Valid(data.Data) {
			logger.WarnContext(ctx, "UTF-8 ではないソースをスキップします", "source", src)
			continue
		}
		for _, text := range i.Split(string(data.Data)) {
			res.Script = append(res.Script, domain.ScriptPage{Number: len(res.Script) + 1, Text: text})
		}
	}

	logger.InfoContext(ctx, "ソースを取り込みました", "pages", len(res.Script), "images", len(res.Images))
	return res, nil
}

// Split はテキストを台本ページに分けます。改ページ文字、"--- page ---" 行、ページ見出しの順に試し、
// どれもなければ固定文字数で分割します。空のページは除きます。
func (i *Ingestor) Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var parts []string
	switch {
	case strings.Contains(text, "\f"):
		parts = strings.Split(text, "\f")
	case parser.PageBreakRegex.MatchString(text):
		parts = parser.PageBreakRegex.Split(text, -1)
	case len(parser.PageHeadingRegex.FindAllStringIndex(text, -1)) > 1:
		parts = splitAtHeadings(text)
	default:
		parts = chunk(text, i.chunkSize)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitAtHeadings(text string) []string {
	locs := parser.PageHeadingRegex.FindAllStringIndex(text, -1)
	parts := []string{text[:locs[0][0]]}
	for n, loc := range locs {
		end := len(text)
		if n+1 < len(locs) {
			end = locs[n+1][0]
		}
		parts = append(parts, text[loc[0]:end])
	}
	return parts
}

// chunk は行の途中で切らないように size 文字前後で分割します。
func chunk(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > size {
		cut := size
		for j := size; j > size/2; j-- {
			if runes[j-1] == '\n' {
				cut = j
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(out, string(runes))
}
