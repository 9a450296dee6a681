package outbox

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ai-interviewer/internal/storage/models"
)

func TestApplyPublishResult_Success(t *testing.T) {
	now := time.Now()
	msg := &models.OutboxMessage{Status: models.OutboxStatusPending, RetryCount: 2, ErrorMessage: "previous"}

	applyPublishResult(msg, nil, 5, now)

	assert.Equal(t, models.OutboxStatusSent, msg.Status)
	assert.Equal(t, "", msg.ErrorMessage)
	if assert.NotNil(t, msg.ProcessedAt) {
		assert.Equal(t, now, *msg.ProcessedAt)
	}
}

func TestApplyPublishResult_RetryThenFail(t *testing.T) {
	msg := &models.OutboxMessage{Status: models.OutboxStatusPending}
	boom := errors.New("broker down")

	for i := 1; i < 3; i++ {
		applyPublishResult(msg, boom, 3, time.Now())
		assert.Equal(t, models.OutboxStatusPending, msg.Status, "第 %d 次失败后仍应等待重试", i)
		assert.Equal(t, i, msg.RetryCount)
		assert.Nil(t, msg.ProcessedAt)
	}

	applyPublishResult(msg, boom, 3, time.Now())
	assert.Equal(t, models.OutboxStatusFailed, msg.Status)
	assert.Equal(t, "broker down", msg.ErrorMessage)
	assert.NotNil(t, msg.ProcessedAt)
}

func TestNewMessageRelay_Options(t *testing.T) {
	r := NewMessageRelay(nil, nil, WithPollingInterval(time.Second), WithBatchSize(50), WithMaxRetries(0))
	assert.Equal(t, time.Second, r.pollingInterval)
	assert.Equal(t, 50, r.batchSize)
	assert.Equal(t, defaultMaxRetries, r.maxRetries)
}
