package tracing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ai-interviewer/internal/types"
)

// ErrorType 写入 span 的 error.type，便于按依赖分类过滤
type ErrorType string

const (
	ErrorTypeHTTP       ErrorType = "http"
	ErrorTypeDB         ErrorType = "db"
	ErrorTypeRedis      ErrorType = "redis"
	ErrorTypeRabbitMQ   ErrorType = "rabbitmq"
	ErrorTypeVectorDB   ErrorType = "vector_db"
	ErrorTypeLLM        ErrorType = "llm"
	ErrorTypeEmbedding  ErrorType = "embedding"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
)

// classify 领域错误和超时优先于调用方给出的分类
func classify(err error, fallback ErrorType) ErrorType {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, types.ErrGenerationFailure):
		return ErrorTypeLLM
	case errors.Is(err, types.ErrEmbeddingFailure):
		return ErrorTypeEmbedding
	case errors.Is(err, types.ErrInvalidInput), errors.Is(err, types.ErrNoProfileText):
		return ErrorTypeValidation
	}
	return fallback
}

// RecordError 把错误写入 span。err 是 CoreError 时附带操作名和会话 id
func RecordError(span trace.Span, err error, errorType ErrorType, attributes ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	kind := classify(err, errorType)
	attrs := []attribute.KeyValue{
		attribute.String("error.type", string(kind)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
	}
	var ce *types.CoreError
	if errors.As(err, &ce) {
		if ce.Op != "" {
			attrs = append(attrs, attribute.String("error.op", ce.Op))
		}
		if ce.SessionID != "" {
			attrs = append(attrs, attribute.String("session.id", ce.SessionID))
		}
	}
	attrs = append(attrs, attributes...)

	span.RecordError(err)
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, fmt.Sprintf("%s: %s", kind, TruncateString(err.Error(), DefaultMaxLength)))
}

// RecordHTTPError 记录外部 HTTP 调用返回的非 2xx 状态
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	RecordError(span, err, ErrorTypeHTTP,
		attribute.Int("http.status_code", statusCode),
		attribute.String("error.category", HTTPErrorCategory(statusCode)),
	)
}

// HTTPErrorCategory 按状态码区分客户端和服务端错误
func HTTPErrorCategory(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "server_error"
	case statusCode >= 400:
		return "client_error"
	}
	return "unknown"
}

// RecordRequeue 消费失败、消息被退回队列
func RecordRequeue(span trace.Span, queue, messageID string) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeRabbitMQ)),
		attribute.String("messaging.destination", queue),
		attribute.String("messaging.message_id", messageID),
		attribute.String("messaging.operation", "nack"),
		attribute.Bool("messaging.requeued", true),
	)
	span.SetStatus(codes.Error, "message rejected by handler, requeued")
}
