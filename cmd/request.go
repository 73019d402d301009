package cmd

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// parseRequest は YAML か JSON のジョブリクエストを読み取るのだ。
// キーは JSON と同じ snake_case なので、一度汎用の値に読んでから JSON の定義で詰め直すのだ。
func parseRequest(data []byte) (domain.JobRequest, error) {
	var req domain.JobRequest
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return req, fmt.Errorf("リクエストファイルの解析に失敗しました: %w", err)
	}
	if raw == nil {
		return req, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return req, fmt.Errorf("リクエストファイルの変換に失敗しました: %w", err)
	}
	if err := json.Unmarshal(b, &req); err != nil {
		return req, fmt.Errorf("リクエストファイルの変換に失敗しました: %w", err)
	}
	return req, nil
}
