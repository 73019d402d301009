package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/domain"
)

// runJob はジョブを 1 件ローカルで実行し、終端メッセージを保存・表示するのだ。
func runJob(cmd *cobra.Command, action domain.Action, override func(*domain.JobRequest)) error {
	ctx := cmd.Context()

	cfg := config.LoadConfig()
	app, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗したのだ: %w", err)
	}
	defer app.Close()

	req, err := loadRequest(ctx, app)
	if err != nil {
		return err
	}
	req.Action = action
	applyOptions(&req)
	if override != nil {
		override(&req)
	}

	slog.Info("ジョブを実行するのだ！",
		"project_id", req.ProjectID,
		"action", req.Action,
		"text_model", cfg.Kit.GeminiModel,
		"image_model", cfg.Kit.ImageModel,
	)

	res, runErr := app.Manager.Execute(ctx, req, app.Publisher)
	if err := writeResult(ctx, cmd, app, res); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("ジョブの実行中にエラーが発生したのだ: %w", runErr)
	}
	slog.Info("すべての工程が完了したのだ！", "status", res.Status)
	return nil
}

// loadRequest は --request のファイルを読み込むのだ。指定がなければ空のリクエストなのだ。
func loadRequest(ctx context.Context, app *builder.AppContext) (domain.JobRequest, error) {
	if opts.RequestFile == "" {
		return domain.JobRequest{}, nil
	}
	data, err := app.Store.Get(ctx, localPath(opts.RequestFile))
	if err != nil {
		return domain.JobRequest{}, fmt.Errorf("リクエストファイル '%s' の読み込みに失敗しました: %w", opts.RequestFile, err)
	}
	return parseRequest(data)
}

func writeResult(ctx context.Context, cmd *cobra.Command, app *builder.AppContext, res domain.JobResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("結果のエンコードに失敗しました: %w", err)
	}
	if opts.OutputFile == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	loc, err := app.Store.Put(ctx, localPath(opts.OutputFile), data, "application/json")
	if err != nil {
		return fmt.Errorf("結果の保存に失敗しました: %w", err)
	}
	slog.Info("結果を保存したのだ", "path", loc)
	return nil
}

// localPath はストレージのベースではなくカレントディレクトリ基準でローカルパスを解決するのだ。
func localPath(p string) string {
	lower := strings.ToLower(p)
	if strings.HasPrefix(lower, "gs://") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
