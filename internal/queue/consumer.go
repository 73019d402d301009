package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
)

const (
	maxConnectAttempts = 5
	reconnectDelay     = 5 * time.Second
	consumerTag        = "comic-worker"
)

// JobRunner はジョブを実行して結果を sink へ送るのだ。workflow.Manager が満たすのだ。
type JobRunner interface {
	Execute(ctx context.Context, req domain.JobRequest, sink pipeline.Sink) (domain.JobResult, error)
}

// Dial は AMQP ブローカーへ接続するのだ。失敗したら間隔を空けて数回やり直すのだ。
func Dial(ctx context.Context, url string) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "AMQP への接続に失敗したのでやり直すのだ", "attempt", attempt, "error", err)

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("AMQP への接続に失敗しました (%d 回): %w", maxConnectAttempts, lastErr)
}

// Consumer はタスクキューからジョブを 1 件ずつ受け取り、パイプラインを実行するのだ。
type Consumer struct {
	conn   *amqp.Connection
	queue  string
	runner JobRunner
	sink   pipeline.Sink
}

// NewConsumer は Consumer を初期化するのだ。
func NewConsumer(conn *amqp.Connection, queue string, runner JobRunner, sink pipeline.Sink) (*Consumer, error) {
	if runner == nil {
		return nil, fmt.Errorf("JobRunner は必須です")
	}
	if sink == nil {
		return nil, fmt.Errorf("Sink は必須です")
	}
	return &Consumer{conn: conn, queue: queue, runner: runner, sink: sink}, nil
}

// Run は ctx が終わるか配信チャネルが閉じるまでメッセージを処理し続けるのだ。
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("受信用チャネルのオープンに失敗しました: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("キュー %s の宣言に失敗しました: %w", c.queue, err)
	}
	// 画像生成は重いので一度に 1 件だけ受け取るのだ
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("QoS の設定に失敗しました: %w", err)
	}
	msgs, err := ch.Consume(c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("コンシューマーの登録に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "ジョブの受信を開始したのだ", "queue", c.queue)
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("配信チャネルが閉じられました (queue: %s)", c.queue)
			}
			c.handle(ctx, msg)
		case <-ctx.Done():
			slog.InfoContext(ctx, "ジョブの受信を停止するのだ")
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	if c.HandleDelivery(ctx, msg.Body) {
		if err := msg.Ack(false); err != nil {
			slog.ErrorContext(ctx, "メッセージの ack に失敗しました", "delivery_tag", msg.DeliveryTag, "error", err)
		}
		return
	}
	// 壊れたメッセージは何度受け取っても処理できないので再投入しないのだ
	if err := msg.Nack(false, false); err != nil {
		slog.ErrorContext(ctx, "メッセージの nack に失敗しました", "delivery_tag", msg.DeliveryTag, "error", err)
	}
}

// HandleDelivery は 1 件のメッセージを処理し、ack してよいかを返すのだ。
// ジョブの失敗は結果メッセージで伝えるので ack し、解析できないメッセージだけ false を返すのだ。
func (c *Consumer) HandleDelivery(ctx context.Context, body []byte) bool {
	var req domain.JobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.ErrorContext(ctx, "ジョブメッセージの解析に失敗したのだ", "error", err, "body", parser.Truncate(string(body), 200))
		return false
	}
	if strings.TrimSpace(req.JobID) == "" {
		req.JobID = uuid.NewString()
	}

	logger := slog.With("job_id", req.JobID, "project_id", req.ProjectID, "action", req.Action)
	logger.InfoContext(ctx, "ジョブを受け取ったのだ")
	res, err := c.runner.Execute(ctx, req, c.sink)
	if err != nil {
		logger.WarnContext(ctx, "ジョブが失敗したのだ", "status", res.Status, "error", err)
	}
	return true
}
