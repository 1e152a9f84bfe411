package source

import (
	"context"
	"fmt"

	"github.com/reaktor-nukleus/http-source/internal/fabric"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// startSpan opens a span for one routed request, keyed by the source
// correlation id so traces line up with the reply side's own spans once
// it emits its response (out of scope here; see pkg/celeris/tracing.go
// for the span-per-request convention this follows).
func (s *Stream) startSpan(headers fabric.Headers) {
	if s.factory.tracer == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int64("source.correlation_id", int64(s.sourceCorrelationID)),
		attribute.String("target.name", s.target.Name()),
	}
	for _, h := range headers {
		switch h[0] {
		case ":method":
			attrs = append(attrs, attribute.String("http.method", h[1]))
		case ":path":
			attrs = append(attrs, attribute.String("http.target", h[1]))
		case ":authority":
			attrs = append(attrs, attribute.String("http.host", h[1]))
		}
	}
	_, span := s.factory.tracer.Start(context.Background(), "http.source.request", trace.WithAttributes(attrs...))
	s.span = span
}

// endSpan closes the current request's span, recording status as an
// error code when it is a non-2xx disposition (canned rejection or an
// internal fatal).
func (s *Stream) endSpan(status int) {
	if s.span == nil {
		return
	}
	if status >= 400 {
		s.span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
	s.span = nil
}
