// Package outbox 实现发件箱模式：业务事务写入 outbox_messages，中继异步投递到消息队列。
package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/storage/models"
	"ai-interviewer/internal/tracing"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	defaultMaxRetries      = 5
)

// Publisher 消息发布器，由 storage.RabbitMQ 实现
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// MessageRelay 轮询 outbox 表并将消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       Publisher
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	done            chan struct{}
	stopped         chan struct{}
	started         bool
	tracer          trace.Tracer
}

// Option 配置 MessageRelay
type Option func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) Option {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每次轮询处理的消息数
func WithBatchSize(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMaxRetries 设置标记为 FAILED 之前的最大发布次数
func WithMaxRetries(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// NewMessageRelay 创建一个新的 MessageRelay 实例
func NewMessageRelay(db *gorm.DB, publisher Publisher, opts ...Option) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger.Named("outbox"),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		maxRetries:      defaultMaxRetries,
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
		tracer:          otel.Tracer("ai-interviewer/outbox"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 在后台开始轮询，ctx 取消或调用 Stop 后退出
func (r *MessageRelay) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.pollingInterval).Msg("message relay starting")
	r.started = true
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		defer close(r.stopped)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.processPendingMessages(ctx); err != nil {
					r.logger.Error().Err(err).Msg("error processing pending messages")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次完成
func (r *MessageRelay) Stop() {
	if !r.started {
		return
	}
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	<-r.stopped
	r.logger.Info().Msg("message relay stopped")
}

// processPendingMessages 获取并处理一批待处理消息。
// FOR UPDATE SKIP LOCKED 让多个实例可以同时运行而不重复投递。
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}
	// 空轮询不创建span
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))))
	defer span.End()

	for i := range messages {
		msg := &messages[i]
		pubErr := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
		if pubErr != nil {
			r.logger.Warn().Err(pubErr).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retries", msg.RetryCount+1).
				Msg("failed to publish outbox message")
		}
		applyPublishResult(msg, pubErr, r.maxRetries, time.Now())

		if err := tx.Save(msg).Error; err != nil {
			// 整个批次回滚，下次轮询重新拾取
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return err
		}
	}
	return tx.Commit().Error
}

// applyPublishResult 根据发布结果更新消息状态
func applyPublishResult(msg *models.OutboxMessage, pubErr error, maxRetries int, now time.Time) {
	if pubErr == nil {
		msg.Status = models.OutboxStatusSent
		msg.ProcessedAt = &now
		msg.ErrorMessage = ""
		return
	}
	msg.RetryCount++
	msg.ErrorMessage = pubErr.Error()
	if msg.RetryCount >= maxRetries {
		msg.Status = models.OutboxStatusFailed
		msg.ProcessedAt = &now
	}
}
