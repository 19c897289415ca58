package llm

import (
	"context"
	"time"

	"github.com/BaSui01/drama/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/drama/llm"

// InstrumentedBackend wraps a Backend with a tracing span and Prometheus
// counters per job. A nil collector records nothing.
type InstrumentedBackend struct {
	next      Backend
	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

var _ Backend = (*InstrumentedBackend)(nil)

// NewInstrumentedBackend wraps next.
func NewInstrumentedBackend(next Backend, collector *metrics.Collector, logger *zap.Logger) *InstrumentedBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedBackend{
		next:      next,
		collector: collector,
		tracer:    otel.Tracer(instrumentationName),
		logger:    logger.With(zap.String("component", "llm_instrumented")),
	}
}

// Submit forwards job to the wrapped backend.
func (b *InstrumentedBackend) Submit(ctx context.Context, job *Job) (*Response, error) {
	ctx, span := b.tracer.Start(ctx, "llm.submit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.job_id", job.ID),
			attribute.String("llm.model", job.ModelConfig.Model),
			attribute.String("llm.preset", job.Preset),
			attribute.String("drama.chat_id", job.ChatID),
			attribute.String("drama.interaction_id", job.InteractionID),
		))
	defer span.End()

	start := time.Now()
	resp, err := b.next.Submit(ctx, job)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.collector.RecordInference(job.ModelConfig.Model, job.Preset, "error", duration, 0, 0)
		b.logger.Warn("inference failed",
			zap.String("job_id", job.ID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("llm.response_id", resp.ID),
		attribute.Int("llm.tokens.input", resp.InputTokens),
		attribute.Int("llm.tokens.output", resp.OutputTokens),
	)
	span.SetStatus(codes.Ok, "")
	b.collector.RecordInference(job.ModelConfig.Model, job.Preset, "success", duration, resp.InputTokens, resp.OutputTokens)
	return resp, nil
}
