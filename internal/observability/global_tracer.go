package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "helpcy"

var globalTracer trace.Tracer

// InitGlobalTracer binds the package tracer to the current global provider.
func InitGlobalTracer() {
	globalTracer = otel.Tracer(tracerName)
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		globalTracer = otel.Tracer(tracerName)
	}
	return globalTracer
}

// TraceFunction starts a new span named "<service>.<function>".
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return GetGlobalTracer().Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceConversationFunction starts a new span for the conversation state machine.
func TraceConversationFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "conversation", functionName, attributes...)
}

// TraceStoreFunction starts a new span for a draft store operation.
func TraceStoreFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "store", functionName, attributes...)
}

// TraceAIFunction starts a new span for a classification call.
func TraceAIFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "ai", functionName, attributes...)
}

// TraceMediaFunction starts a new span for a media store operation.
func TraceMediaFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "media", functionName, attributes...)
}

// TraceTelegramFunction starts a new span for a Bot API call.
func TraceTelegramFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "telegram", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceWorkerFunction starts a new span for a background worker cycle.
func TraceWorkerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "worker", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeUserID returns a tracing attribute for the reporting user.
func AttributeUserID(id int64) attribute.KeyValue {
	return attribute.Int64("user.id", id)
}

// AttributeEventType returns a tracing attribute for a normalized event tag.
func AttributeEventType(eventType string) attribute.KeyValue {
	return attribute.String("event.type", eventType)
}

// AttributeEventSource returns a tracing attribute for the channel an event came from.
func AttributeEventSource(source string) attribute.KeyValue {
	return attribute.String("event.source", source)
}

// AttributeStage returns a tracing attribute for a conversation stage.
func AttributeStage(stage string) attribute.KeyValue {
	return attribute.String("draft.stage", stage)
}

// AttributeRevision returns a tracing attribute for a draft revision.
func AttributeRevision(revision int64) attribute.KeyValue {
	return attribute.Int64("draft.revision", revision)
}

// AttributeProvider returns a tracing attribute for the AI provider name.
func AttributeProvider(provider string) attribute.KeyValue {
	return attribute.String("ai.provider", provider)
}
