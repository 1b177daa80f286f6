package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lokal-id/netstress/internal/runner"
)

// Span attribute keys.
const (
	AttrProtocol   = attribute.Key("netstress.protocol")
	AttrTarget     = attribute.Key("server.address")
	AttrUnit       = attribute.Key("netstress.unit")
	AttrQueueDelay = attribute.Key("netstress.queue_delay_ms")
)

type unitSpans struct {
	next   runner.Requester
	tracer trace.Tracer
	name   string
	attrs  []attribute.KeyValue
}

// WithSpans runs every unit of req inside a client span. A disabled
// provider returns req unchanged.
func WithSpans(req runner.Requester, p *Provider, protocol, target string) runner.Requester {
	if !p.Enabled() {
		return req
	}
	return WithTracer(req, p.Tracer(), protocol, target)
}

// WithTracer is WithSpans for an explicit tracer.
func WithTracer(req runner.Requester, tracer trace.Tracer, protocol, target string) runner.Requester {
	attrs := []attribute.KeyValue{AttrProtocol.String(protocol)}
	if target != "" {
		attrs = append(attrs, AttrTarget.String(target))
	}
	return &unitSpans{next: req, tracer: tracer, name: protocol + " unit", attrs: attrs}
}

func (s *unitSpans) Do(ctx context.Context) error {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(s.attrs...),
	}
	info, queued := runner.UnitFromContext(ctx)
	if queued {
		opts = append(opts, trace.WithAttributes(
			AttrUnit.Int64(int64(info.Seq)),
			AttrQueueDelay.Float64(float64(info.RunningAt.Sub(info.AdmittedAt))/1e6),
		))
	}

	ctx, span := s.tracer.Start(ctx, s.name, opts...)
	defer span.End()
	if queued {
		span.AddEvent("admitted", trace.WithTimestamp(info.AdmittedAt))
	}

	err := s.next.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
