package ai

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comic_ai_calls_total",
			Help: "Total number of external AI calls by capability, backend and status.",
		},
		[]string{"capability", "backend", "status"},
	)

	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comic_ai_call_duration_seconds",
			Help:    "Latency of external AI calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"capability", "backend"},
	)
)

func observe(capability, backend string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	callsTotal.WithLabelValues(capability, backend, status).Inc()
	callDuration.WithLabelValues(capability, backend).Observe(time.Since(start).Seconds())
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type instrumentedText struct {
	next    TextGenerator
	backend string
	timeout time.Duration
}

// InstrumentText はタイムアウトとメトリクス計測を付与した TextGenerator を返します。
func InstrumentText(next TextGenerator, backend string, timeout time.Duration) TextGenerator {
	return &instrumentedText{next: next, backend: backend, timeout: timeout}
}

func (t *instrumentedText) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()
	start := time.Now()
	text, err := t.next.Generate(ctx, prompt, systemPrompt)
	observe("text", t.backend, start, err)
	return text, err
}

type instrumentedVision struct {
	next    VisionGenerator
	timeout time.Duration
}

// InstrumentVision はタイムアウトとメトリクス計測を付与した VisionGenerator を返します。
func InstrumentVision(next VisionGenerator, timeout time.Duration) VisionGenerator {
	return &instrumentedVision{next: next, timeout: timeout}
}

func (v *instrumentedVision) Name() string { return v.next.Name() }

func (v *instrumentedVision) Describe(ctx context.Context, prompt string, images []ImageData) (string, error) {
	ctx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()
	start := time.Now()
	text, err := v.next.Describe(ctx, prompt, images)
	observe("vision", v.next.Name(), start, err)
	return text, err
}

type instrumentedImage struct {
	next    ImageGenerator
	backend string
	timeout time.Duration
}

// InstrumentImage はタイムアウトとメトリクス計測を付与した ImageGenerator を返します。
func InstrumentImage(next ImageGenerator, backend string, timeout time.Duration) ImageGenerator {
	return &instrumentedImage{next: next, backend: backend, timeout: timeout}
}

func (i *instrumentedImage) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, i.timeout)
	defer cancel()
	start := time.Now()
	loc, err := i.next.Generate(ctx, req)
	observe("image_generate", i.backend, start, err)
	return loc, err
}

func (i *instrumentedImage) Edit(ctx context.Context, req EditRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, i.timeout)
	defer cancel()
	start := time.Now()
	loc, err := i.next.Edit(ctx, req)
	observe("image_edit", i.backend, start, err)
	return loc, err
}
