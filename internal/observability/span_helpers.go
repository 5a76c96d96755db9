package observability

import (
	contextutils "helpcy/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FinishSpan ends a span and records any error pointed to by errPtr.
// Use with a named error return: `defer observability.FinishSpan(span, &err)`
//
// Rejections the conversation answers with a prompt are tagged with their
// error code but leave the span status unset.
func FinishSpan(span trace.Span, errPtr *error) {
	if span == nil {
		return
	}
	if errPtr != nil && *errPtr != nil {
		err := *errPtr
		span.SetAttributes(attribute.String("error.code", string(contextutils.GetErrorCode(err))))
		if contextutils.IsUserFacing(err) {
			span.AddEvent("rejected", trace.WithAttributes(attribute.String("error.message", err.Error())))
		} else {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
