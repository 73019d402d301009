package merger

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	// 参照画像のデコーダー
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

var (
	backgroundColor = color.White
	missingColor    = color.RGBA{R: 0xDD, G: 0xDD, B: 0xDD, A: 0xFF}
	borderColor     = color.Black
)

// CollageRenderer はパネル画像をレイアウトの矩形に縮小配置した下絵を描画します。
type CollageRenderer struct {
	width        int
	height       int
	paddingRatio float64
}

// NewCollageRenderer は CollageRenderer を初期化します。
func NewCollageRenderer(width, height int, paddingRatio float64) *CollageRenderer {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1536
	}
	if paddingRatio < 0 {
		paddingRatio = 0
	}
	return &CollageRenderer{width: width, height: height, paddingRatio: paddingRatio}
}

// Box はパネルのレイアウトをキャンバス上のピクセル矩形に変換します。
func (r *CollageRenderer) Box(l domain.Layout) image.Rectangle {
	padX := int(float64(r.width) * r.paddingRatio)
	padY := int(float64(r.height) * r.paddingRatio)
	innerW := float64(r.width - 2*padX)
	innerH := float64(r.height - 2*padY)

	x0 := padX + int(math.Round(l.X/100*innerW))
	y0 := padY + int(math.Round(l.Y/100*innerH))
	x1 := x0 + int(math.Round(l.W/100*innerW))
	y1 := y0 + int(math.Round(l.H/100*innerH))
	return image.Rect(x0, y0, x1, y1)
}

// Render はページのパネルを描画します。images はパネル ID から画像への対応で、
// 画像のないパネルは灰色の枠で描きます。矩形がキャンバスをはみ出す場合はキャンバスを広げます。
func (r *CollageRenderer) Render(panels domain.Panels, images map[string]image.Image) *image.RGBA {
	bounds := image.Rect(0, 0, r.width, r.height)
	boxes := make([]image.Rectangle, len(panels))
	for i, p := range panels {
		l := p.Layout
		if !l.IsAssigned() {
			l = domain.Layout{X: 0, Y: 0, W: 100, H: 100}
		}
		boxes[i] = r.Box(l)
		bounds = bounds.Union(image.Rect(0, 0, boxes[i].Max.X, boxes[i].Max.Y))
	}

	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	for i, p := range panels {
		box := boxes[i]
		if box.Empty() {
			continue
		}
		src, ok := images[p.ID]
		if !ok || src == nil {
			draw.Draw(canvas, box, image.NewUniform(missingColor), image.Point{}, draw.Src)
		} else {
			draw.CatmullRom.Scale(canvas, box, src, coverRect(src.Bounds(), box), draw.Over, nil)
		}
		strokeRect(canvas, box)
	}
	return canvas
}

// Encode は画像を PNG にエンコードします。
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("コラージュのエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode は PNG / JPEG / GIF / WebP の画像をデコードします。
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}
	return img, nil
}

// coverRect は矩形の縦横比に合わせて元画像の中央を切り出す範囲を返します。
func coverRect(src, box image.Rectangle) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	bw, bh := float64(box.Dx()), float64(box.Dy())
	if sw == 0 || sh == 0 || bw == 0 || bh == 0 {
		return src
	}
	if sw/sh > bw/bh {
		w := int(sh * bw / bh)
		x := src.Min.X + (src.Dx()-w)/2
		return image.Rect(x, src.Min.Y, x+w, src.Max.Y)
	}
	h := int(sw * bh / bw)
	y := src.Min.Y + (src.Dy()-h)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+h)
}

func strokeRect(dst *image.RGBA, r image.Rectangle) {
	for x := r.Min.X; x < r.Max.X; x++ {
		dst.Set(x, r.Min.Y, borderColor)
		dst.Set(x, r.Max.Y-1, borderColor)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dst.Set(r.Min.X, y, borderColor)
		dst.Set(r.Max.X-1, y, borderColor)
	}
}
