package completion

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZanzyTHEbar/concrete-go"
)

const tracerName = "github.com/ZanzyTHEbar/concrete-go/completion"

type traced struct {
	next     concrete.CompletionService
	provider string
	tracer   trace.Tracer
}

// Traced records a span per completion using the global TracerProvider.
func Traced(next concrete.CompletionService, provider string) concrete.CompletionService {
	return TracedWith(next, provider, otel.Tracer(tracerName))
}

// TracedWith records spans on tracer.
func TracedWith(next concrete.CompletionService, provider string, tracer trace.Tracer) concrete.CompletionService {
	return &traced{next: next, provider: provider, tracer: tracer}
}

func (t *traced) Complete(ctx context.Context, req concrete.CompletionRequest) (*concrete.CompletionResponse, error) {
	ctx, span := t.tracer.Start(ctx, "completion.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("completion.provider", t.provider),
			attribute.String("completion.schema", req.SchemaName),
			attribute.String("completion.model", req.Model),
			attribute.Int("completion.messages", len(req.Messages)),
		),
	)
	defer span.End()

	resp, err := t.next.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("completion.refused", resp.Refusal != ""),
		attribute.Int64("completion.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("completion.output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}
