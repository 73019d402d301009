package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	imagedom "github.com/shouni/gemini-image-kit/pkg/domain"
	imagekit "github.com/shouni/gemini-image-kit/pkg/generator"
	"golang.org/x/sync/singleflight"
)

// editFrame は起点画像を編集する際にプロンプトの先頭へ付与する指示です。
const editFrame = "Edit the FIRST reference image. Keep its composition, characters and framing unless the instructions below change them. Other reference images are context only.\n\n"

// KitImageGenerator は gemini-image-kit を使った画像生成アダプターです。
// 参照画像は File API へ一度だけアップロードし、URI を再利用します。
type KitImageGenerator struct {
	generator   imagekit.ImageGenerator
	assets      imagekit.AssetManager
	writer      BlobWriter
	mu          sync.RWMutex
	fileURIs    map[string]string // 参照 URL -> File API URI
	uploadGroup singleflight.Group
}

// NewKitImageGenerator は KitImageGenerator を初期化します。assets は nil でも構いません。
func NewKitImageGenerator(gen imagekit.ImageGenerator, assets imagekit.AssetManager, writer BlobWriter) (*KitImageGenerator, error) {
	if gen == nil {
		return nil, fmt.Errorf("ImageGenerator は必須です")
	}
	if writer == nil {
		return nil, fmt.Errorf("BlobWriter は必須です")
	}
	return &KitImageGenerator{
		generator: gen,
		assets:    assets,
		writer:    writer,
		fileURIs:  make(map[string]string),
	}, nil
}

// Generate は参照画像が1枚以下ならパネル生成、複数ならページ生成 API を使って画像を生成します。
func (k *KitImageGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	refs := dedupe(req.ContextImages)

	var (
		resp *imagedom.ImageResponse
		err  error
	)
	if len(refs) <= 1 {
		r := imagedom.ImageGenerationRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			SystemPrompt:   req.StyleHint,
			Seed:           req.Seed,
			AspectRatio:    req.AspectRatio,
		}
		if len(refs) == 1 {
			r.ReferenceURL = refs[0]
			r.FileAPIURI = k.fileURI(ctx, refs[0])
		}
		resp, err = k.generator.GenerateMangaPanel(ctx, r)
	} else {
		resp, err = k.generator.GenerateMangaPage(ctx, imagedom.ImagePageRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			SystemPrompt:   req.StyleHint,
			AspectRatio:    req.AspectRatio,
			Seed:           req.Seed,
			ReferenceURLs:  refs,
		})
	}
	if err != nil {
		return "", fmt.Errorf("画像生成に失敗しました: %w", err)
	}
	return k.store(ctx, req.OutputKey, resp)
}

// Edit は起点画像を先頭の参照画像として渡し、差分指示付きで画像を生成します。
func (k *KitImageGenerator) Edit(ctx context.Context, req EditRequest) (string, error) {
	if req.SourceImage == "" {
		return "", fmt.Errorf("編集元の画像が指定されていません")
	}
	refs := dedupe(append([]string{req.SourceImage}, req.ContextImages...))

	resp, err := k.generator.GenerateMangaPage(ctx, imagedom.ImagePageRequest{
		Prompt:         editFrame + req.Prompt,
		NegativePrompt: req.NegativePrompt,
		AspectRatio:    req.AspectRatio,
		Seed:           req.Seed,
		ReferenceURLs:  refs,
	})
	if err != nil {
		return "", fmt.Errorf("画像編集に失敗しました: %w", err)
	}
	return k.store(ctx, req.OutputKey, resp)
}

func (k *KitImageGenerator) store(ctx context.Context, key string, resp *imagedom.ImageResponse) (string, error) {
	if resp == nil || len(resp.Data) == 0 {
		return "", fmt.Errorf("画像生成の応答が空です")
	}
	mime := resp.MimeType
	if mime == "" {
		mime = "image/png"
	}
	loc, err := k.writer.Put(ctx, key, resp.Data, mime)
	if err != nil {
		return "", fmt.Errorf("生成画像の保存に失敗しました (key: %s): %w", key, err)
	}
	return loc, nil
}

// fileURI は参照画像の File API URI を返します。アップロードに失敗した場合は空文字を返し、
// 生成側に参照 URL からの直接読み込みを任せます。
func (k *KitImageGenerator) fileURI(ctx context.Context, referenceURL string) string {
	if k.assets == nil || referenceURL == "" {
		return ""
	}

	k.mu.RLock()
	uri, ok := k.fileURIs[referenceURL]
	k.mu.RUnlock()
	if ok {
		return uri
	}

	val, err, _ := k.uploadGroup.Do(referenceURL, func() (interface{}, error) {
		// singleflight で待機中に他のゴルーチンがアップロードを完了させている可能性があるため再確認する
		k.mu.RLock()
		existing, ok := k.fileURIs[referenceURL]
		k.mu.RUnlock()
		if ok {
			return existing, nil
		}

		uploaded, err := k.assets.UploadFile(ctx, referenceURL)
		if err != nil {
			return nil, err
		}

		k.mu.Lock()
		k.fileURIs[referenceURL] = uploaded
		k.mu.Unlock()
		return uploaded, nil
	})
	if err != nil {
		slog.WarnContext(ctx, "参照画像のアップロードに失敗しました", "url", referenceURL, "error", err)
		return ""
	}
	uri, _ = val.(string)
	return uri
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
