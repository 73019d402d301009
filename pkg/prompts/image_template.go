package prompts

const (
	// PanelNegativePrompt はパネル生成時のネガティブプロンプトです。
	// 台詞は後工程の吹き出しで扱うため、画像内の文字を抑制します。
	PanelNegativePrompt = "speech bubble, dialogue balloon, text, alphabet, letters, words, signatures, watermark, username, low quality, distorted, bad anatomy, extra limbs"

	// PageNegativePrompt はページ統合時のネガティブプロンプトです。
	PageNegativePrompt = "speech bubble, text, letters, watermark, overlapping panels, missing panels, blurry, low quality"

	// DefaultBlendDescription はすべての画像解析候補が失敗したときのブレンド指示です。
	DefaultBlendDescription = "Unify the panels with consistent lighting, a shared color palette and uniform line weight. Keep clean, thin gutters between panels."

	// DefaultStylePrompt は画風の正典がない場合の画風指定です。
	DefaultStylePrompt = "Professional comic book art style."
)
