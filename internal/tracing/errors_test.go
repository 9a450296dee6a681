package tracing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"ai-interviewer/internal/types"
)

func recordOne(t *testing.T, err error, kind ErrorType) sdktrace.ReadOnlySpan {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	RecordError(span, err, kind)
	span.End()
	spans := sr.Ended()
	require.Len(t, spans, 1)
	return spans[0]
}

func attrValue(span sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key(key) {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestRecordError_ClassifiesDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorType
	}{
		{types.NewGenerationError("advance", 3, errors.New("503")), ErrorTypeLLM},
		{types.NewEmbeddingError("embed", errors.New("quota")), ErrorTypeEmbedding},
		{types.NewNoProfileTextError("match", "s-1"), ErrorTypeValidation},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{errors.New("connection refused"), ErrorTypeDB},
	}
	for _, tc := range cases {
		span := recordOne(t, tc.err, ErrorTypeDB)
		got, ok := attrValue(span, "error.type")
		require.True(t, ok)
		assert.Equal(t, string(tc.want), got, tc.err.Error())
		assert.Equal(t, codes.Error, span.Status().Code)
	}
}

func TestRecordError_SessionAttributes(t *testing.T) {
	span := recordOne(t, types.NewSessionNotFoundError("get_session", "s-42"), ErrorTypeDB)

	id, ok := attrValue(span, "session.id")
	require.True(t, ok)
	assert.Equal(t, "s-42", id)
	op, _ := attrValue(span, "error.op")
	assert.Equal(t, "get_session", op)
}

func TestRecordError_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError(nil, errors.New("x"), ErrorTypeInternal)
		RecordRequeue(nil, "q", "m")
	})
}
