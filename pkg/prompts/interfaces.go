package prompts

// PromptBuilder は推論呼び出し用のプロンプトを構築する契約です。
type PromptBuilder interface {
	// Build は、指定されたモードとデータに基づいてプロンプト文字列を生成します。
	Build(mode string, data TemplateData) (string, error)
}
