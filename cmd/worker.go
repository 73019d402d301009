package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/internal/queue"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
)

// workerCmd は、タスクキューのジョブを 1 件ずつ処理し続けるのだ。
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "タスクキューからジョブを受け取って実行し続けるのだ。",
	Long: `TASK_QUEUE からジョブを 1 件ずつ受け取り、パイプラインを実行して
終端メッセージを RESULT_QUEUE とストレージに送るのだ。`,
	RunE: workerCommand,
}

func workerCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	app, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗したのだ: %w", err)
	}
	defer app.Close()

	conn, err := queue.Dial(ctx, cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	results, err := queue.NewPublisher(conn, cfg.ResultQueue)
	if err != nil {
		return err
	}
	defer results.Close()

	consumer, err := queue.NewConsumer(conn, cfg.TaskQueue, app.Manager, pipeline.MultiSink{results, app.Publisher})
	if err != nil {
		return err
	}

	slog.Info("ワーカーを起動したのだ！", "task_queue", cfg.TaskQueue, "result_queue", cfg.ResultQueue)
	return consumer.Run(ctx)
}
