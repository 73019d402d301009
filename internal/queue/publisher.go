package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// Channel は発行に使う AMQP チャネルの契約なのだ。*amqp.Channel が満たすのだ。
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher は JSON メッセージを永続キューへ発行するのだ。
type Publisher struct {
	mu    sync.Mutex
	ch    Channel
	queue string
}

// NewPublisher は接続からチャネルを開き、永続キューを宣言して Publisher を返すのだ。
func NewPublisher(conn *amqp.Connection, queue string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("発行用チャネルのオープンに失敗しました: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("キュー %s の宣言に失敗しました: %w", queue, err)
	}
	return newPublisher(ch, queue), nil
}

func newPublisher(ch Channel, queue string) *Publisher {
	return &Publisher{ch: ch, queue: queue}
}

// Publish は payload を JSON にして既定の exchange 経由でキューへ送るのだ。
func (p *Publisher) Publish(ctx context.Context, payload any, correlationID string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("メッセージのエンコードに失敗しました: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("発行用チャネルは閉じられています")
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
		DeliveryMode:  amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("メッセージの発行に失敗しました (queue: %s): %w", p.queue, err)
	}
	return nil
}

// PublishJob はジョブリクエストをタスクキューへ送るのだ。
func (p *Publisher) PublishJob(ctx context.Context, req domain.JobRequest) error {
	return p.Publish(ctx, req, req.JobID)
}

// Emit は終端メッセージを結果キューへ送るのだ。pipeline.Sink を満たすのだ。
func (p *Publisher) Emit(ctx context.Context, res domain.JobResult) error {
	return p.Publish(ctx, res, res.JobID)
}

// Close はチャネルを閉じるのだ。
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
