package pipeline

import (
	"context"
	"errors"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// Sink は終端メッセージの送り先です。
type Sink interface {
	Emit(ctx context.Context, res domain.JobResult) error
}

// SinkFunc は関数を Sink として扱うアダプターです。
type SinkFunc func(ctx context.Context, res domain.JobResult) error

// Emit は f(ctx, res) を呼び出します。
func (f SinkFunc) Emit(ctx context.Context, res domain.JobResult) error {
	return f(ctx, res)
}

// ChannelSink は結果をチャネルに送ります。
type ChannelSink chan<- domain.JobResult

// Emit は結果を送信します。ctx がキャンセルされた場合はそのエラーを返します。
func (c ChannelSink) Emit(ctx context.Context, res domain.JobResult) error {
	select {
	case c <- res:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiSink は複数の Sink にすべて送ります。
type MultiSink []Sink

// Emit はすべての Sink に送信し、発生したエラーをまとめて返します。
func (m MultiSink) Emit(ctx context.Context, res domain.JobResult) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
