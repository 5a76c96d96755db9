package observability

import (
	"context"
	"testing"

	contextutils "helpcy/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func finish(err error) {
	_, span := otel.Tracer("test").Start(context.Background(), "op")
	FinishSpan(span, &err)
}

func TestFinishSpan(t *testing.T) {
	recorder := setupRecordingTracer(t)

	finish(nil)
	finish(contextutils.NewAppError(contextutils.ErrorCodeStaleDraft, contextutils.SeverityWarn, "draft changed", ""))
	finish(contextutils.NewAppError(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError, "query failed", ""))

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Empty(t, spans[0].Attributes())

	assert.Equal(t, codes.Unset, spans[1].Status().Code, "rejections are not failures")
	assert.Contains(t, spans[1].Attributes(), attribute.String("error.code", string(contextutils.ErrorCodeStaleDraft)))
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "rejected", spans[1].Events()[0].Name)

	assert.Equal(t, codes.Error, spans[2].Status().Code)
	assert.Contains(t, spans[2].Attributes(), attribute.String("error.code", string(contextutils.ErrorCodeDatabaseQuery)))
}

func TestFinishSpan_NilSpan(t *testing.T) {
	err := assert.AnError
	assert.NotPanics(t, func() { FinishSpan(nil, &err) })
}
