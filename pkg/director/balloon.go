package director

import (
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// 吹き出しの種類です。
const (
	BalloonSpeech    = "speech"
	BalloonThought   = "thought"
	BalloonShout     = "shout"
	BalloonNarration = "narration"
)

// 吹き出しの配置ヒントです。
const (
	PositionTopLeft      = "top-left"
	PositionTopRight     = "top-right"
	PositionBottomCenter = "bottom-center"
)

// BalloonStyler は吹き出しの種類と配置ヒントを正規化します。
type BalloonStyler struct{}

// NewBalloonStyler は BalloonStyler を返します。
func NewBalloonStyler() *BalloonStyler {
	return &BalloonStyler{}
}

// PositionHint はパネル内のインデックスに基づき、左右交互の配置ヒントを返します。
// ナレーションは下中央に置きます。
func (s *BalloonStyler) PositionHint(index int, balloonType string) string {
	if balloonType == BalloonNarration {
		return PositionBottomCenter
	}
	if index%2 == 0 {
		return PositionTopLeft
	}
	return PositionTopRight
}

// DetermineType はセリフに含まれるメタタグと宣言された種類から吹き出しの種類を判定し、
// タグを取り除いたテキストを返します。
func (s *BalloonStyler) DetermineType(declared, text string) (string, string) {
	switch {
	case strings.Contains(text, "[shout]"):
		return BalloonShout, cleanTag(text, "[shout]")
	case strings.Contains(text, "[thought]"):
		return BalloonThought, cleanTag(text, "[thought]")
	}

	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "narration", "narrator", "caption", "narración", "narracion":
		return BalloonNarration, text
	case "thought", "thinking", "pensamiento":
		return BalloonThought, text
	case "shout", "scream", "grito":
		return BalloonShout, text
	default:
		return BalloonSpeech, text
	}
}

// Normalize はパネルの吹き出し列の種類・話者・配置ヒントを整えます。空のテキストは取り除きます。
func (s *BalloonStyler) Normalize(balloons []domain.Balloon) []domain.Balloon {
	out := make([]domain.Balloon, 0, len(balloons))
	for _, b := range balloons {
		kind, text := s.DetermineType(b.Type, b.Text)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		nb := domain.Balloon{Type: kind, Text: text, PositionHint: b.PositionHint}
		if b.Character != nil && kind != BalloonNarration {
			if name := strings.TrimSpace(*b.Character); name != "" && !strings.EqualFold(name, "null") {
				nb.Character = &name
			}
		}
		switch nb.PositionHint {
		case PositionTopLeft, PositionTopRight, PositionBottomCenter:
		default:
			nb.PositionHint = s.PositionHint(len(out), kind)
		}
		out = append(out, nb)
	}
	return out
}

func cleanTag(text, tag string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, tag, ""))
}
