// Package gateway 封装对生成模型的调用：固定次数重试，固定间隔。
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/tracing"
	"ai-interviewer/internal/types"
)

const (
	// DefaultMaxAttempts 默认最大尝试次数
	DefaultMaxAttempts = 3
	// DefaultRetryDelay 两次尝试之间的默认间隔
	DefaultRetryDelay = 2 * time.Second
)

var gatewayTracer = otel.Tracer("ai-interviewer/gateway")

// errEmptyResponse 模型返回了空消息
var errEmptyResponse = errors.New("model returned no message")

// Generator 文本生成接口，Controller/Evaluator/Analyzer 只依赖它
type Generator interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Gateway 对 eino 聊天模型的带重试调用
type Gateway struct {
	model       model.BaseChatModel
	maxAttempts int
	retryDelay  time.Duration
	newTimer    func() backoff.Timer
	logger      zerolog.Logger
}

var _ Generator = (*Gateway)(nil)

// Option 配置 Gateway
type Option func(*Gateway)

// WithMaxAttempts 设置最大尝试次数，小于1时忽略
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithRetryDelay 设置两次尝试之间的间隔
func WithRetryDelay(d time.Duration) Option {
	return func(g *Gateway) {
		if d >= 0 {
			g.retryDelay = d
		}
	}
}

// WithTimer 替换两次尝试之间使用的计时器，每次 Invoke 新建一个
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(g *Gateway) {
		g.newTimer = newTimer
	}
}

// WithLogger 设置日志记录器
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// New 创建 Gateway
func New(m model.BaseChatModel, opts ...Option) *Gateway {
	g := &Gateway{
		model:       m,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      logger.Named("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Invoke 把 prompt 作为单条用户消息发送给模型，返回回复文本。
// 失败时最多尝试 maxAttempts 次，每两次之间等待 retryDelay；
// 全部失败返回 ErrGenerationFailure，并携带最后一次的错误。
func (g *Gateway) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, span := gatewayTracer.Start(ctx, "Gateway.Invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.prompt", tracing.SafePrompt(prompt)),
		attribute.Int("llm.max_attempts", g.maxAttempts),
	)

	messages := []*schema.Message{schema.UserMessage(prompt)}

	attempt := 0
	var reply string
	generate := func() error {
		attempt++
		msg, err := g.model.Generate(ctx, messages)
		if err == nil && msg == nil {
			err = errEmptyResponse
		}
		if err != nil {
			g.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_attempts", g.maxAttempts).
				Msg("generation attempt failed")
			return err
		}
		reply = msg.Content
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.retryDelay), uint64(g.maxAttempts-1)),
		ctx,
	)
	var timer backoff.Timer
	if g.newTimer != nil {
		timer = g.newTimer()
	}
	// 上下文结束时 backoff 返回 ctx.Err()，否则返回最后一次的错误
	if err := backoff.RetryNotifyWithTimer(generate, policy, nil, timer); err != nil {
		genErr := types.NewGenerationError("invoke", g.maxAttempts, err)
		tracing.RecordError(span, genErr, tracing.ErrorTypeLLM)
		g.logger.Error().Err(genErr).Int("attempts", attempt).Msg("generation failed")
		return "", genErr
	}
	span.SetAttributes(attribute.Int("llm.attempts", attempt))
	return reply, nil
}
