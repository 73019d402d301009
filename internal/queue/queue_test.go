package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	closed    bool
	err       error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher(t *testing.T) {
	t.Run("結果が永続メッセージとして発行されること", func(t *testing.T) {
		ch := &fakeChannel{}
		p := newPublisher(ch, "results")
		if err := p.Emit(context.Background(), domain.JobResult{JobID: "j1", ProjectID: "proj", Status: domain.JobStatusCompleted}); err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if len(ch.published) != 1 || ch.keys[0] != "results" {
			t.Fatalf("発行内容が不正なのだ: %+v", ch.keys)
		}
		msg := ch.published[0]
		if msg.DeliveryMode != amqp.Persistent || msg.CorrelationId != "j1" {
			t.Errorf("メッセージ属性が不正なのだ: %+v", msg)
		}
		var got domain.JobResult
		if err := json.Unmarshal(msg.Body, &got); err != nil || got.Status != domain.JobStatusCompleted {
			t.Errorf("本文が不正なのだ: %v %+v", err, got)
		}
	})

	t.Run("閉じた後の発行はエラーになること", func(t *testing.T) {
		ch := &fakeChannel{}
		p := newPublisher(ch, "tasks")
		_ = p.Close()
		if !ch.closed {
			t.Error("チャネルが閉じられていないのだ")
		}
		if err := p.PublishJob(context.Background(), domain.JobRequest{ProjectID: "proj"}); err == nil {
			t.Error("閉じたチャネルでエラーにならなかったのだ")
		}
	})

	t.Run("チャネルのエラーが返されること", func(t *testing.T) {
		p := newPublisher(&fakeChannel{err: errors.New("closed")}, "tasks")
		if err := p.PublishJob(context.Background(), domain.JobRequest{}); err == nil {
			t.Error("エラーが返されなかったのだ")
		}
	})
}

type fakeRunner struct {
	requests []domain.JobRequest
	err      error
}

func (f *fakeRunner) Execute(ctx context.Context, req domain.JobRequest, sink pipeline.Sink) (domain.JobResult, error) {
	f.requests = append(f.requests, req)
	res := domain.JobResult{JobID: req.JobID, ProjectID: req.ProjectID, Status: domain.JobStatusCompleted}
	if f.err != nil {
		res.Status = domain.JobStatusFailed
	}
	return res, errors.Join(f.err, sink.Emit(ctx, res))
}

func TestConsumer_HandleDelivery(t *testing.T) {
	results := make(chan domain.JobResult, 4)

	t.Run("ジョブを実行して ack すること", func(t *testing.T) {
		runner := &fakeRunner{}
		c, _ := NewConsumer(nil, "tasks", runner, pipeline.ChannelSink(results))
		if !c.HandleDelivery(context.Background(), []byte(`{"project_id": "proj", "job_id": "j1"}`)) {
			t.Fatal("ack されなかったのだ")
		}
		if got := <-results; got.JobID != "j1" {
			t.Errorf("結果の job_id = %q", got.JobID)
		}
	})

	t.Run("job_id がなければ採番すること", func(t *testing.T) {
		runner := &fakeRunner{}
		c, _ := NewConsumer(nil, "tasks", runner, pipeline.ChannelSink(results))
		c.HandleDelivery(context.Background(), []byte(`{"project_id": "proj"}`))
		<-results
		if runner.requests[0].JobID == "" {
			t.Error("job_id が採番されていないのだ")
		}
	})

	t.Run("ジョブの失敗でも ack すること", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("boom")}
		c, _ := NewConsumer(nil, "tasks", runner, pipeline.ChannelSink(results))
		if !c.HandleDelivery(context.Background(), []byte(`{"project_id": "proj"}`)) {
			t.Error("失敗したジョブが ack されなかったのだ")
		}
		if got := <-results; got.Status != domain.JobStatusFailed {
			t.Errorf("status = %s", got.Status)
		}
	})

	t.Run("壊れたメッセージは実行せずに nack すること", func(t *testing.T) {
		runner := &fakeRunner{}
		c, _ := NewConsumer(nil, "tasks", runner, pipeline.ChannelSink(results))
		if c.HandleDelivery(context.Background(), []byte(`not json`)) {
			t.Error("壊れたメッセージが ack されたのだ")
		}
		if len(runner.requests) != 0 {
			t.Error("壊れたメッセージでジョブが実行されたのだ")
		}
	})
}

type fakeAcknowledger struct {
	acked, nacked, requeued bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error { f.acked = true; return nil }
func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}
func (f *fakeAcknowledger) Reject(uint64, bool) error { return nil }

func TestConsumer_Handle(t *testing.T) {
	c, _ := NewConsumer(nil, "tasks", &fakeRunner{}, pipeline.SinkFunc(func(context.Context, domain.JobResult) error { return nil }))

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{")})
	if !ack.nacked || ack.requeued || ack.acked {
		t.Errorf("壊れたメッセージは再投入なしで nack されるはずなのだ: %+v", ack)
	}
}
