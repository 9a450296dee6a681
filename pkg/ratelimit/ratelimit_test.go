package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingModel struct {
	calls int
}

func (m *countingModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls++
	return schema.AssistantMessage("ok", nil), nil
}

func (m *countingModel) Stream(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.calls++
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("ok", nil)}), nil
}

type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.calls++
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func frozenBucket(qpm, burst int) (*TokenBucket, *time.Time) {
	tb := NewTokenBucket(qpm, burst)
	clock := tb.last
	tb.now = func() time.Time { return clock }
	return tb, &clock
}

func TestTokenBucket_AllowDrainsBurst(t *testing.T) {
	tb, clock := frozenBucket(60, 2)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "突发额度用完后应拒绝")

	// 60 QPM 每秒补一个
	*clock = clock.Add(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucket_RefillCappedAtBurst(t *testing.T) {
	tb, clock := frozenBucket(60, 2)
	require.True(t, tb.Allow())
	require.True(t, tb.Allow())

	*clock = clock.Add(time.Hour)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucket_DefaultBurst(t *testing.T) {
	assert.Equal(t, 30.0, NewTokenBucket(60, 0).burst)
	assert.Equal(t, 1.0, NewTokenBucket(1, 0).burst)
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

func TestWrapChatModel(t *testing.T) {
	inner := &countingModel{}
	assert.Same(t, inner, WrapChatModel(inner, 0).(*countingModel))

	wrapped, ok := WrapChatModel(inner, 90).(*ChatModel)
	require.True(t, ok)
	assert.InDelta(t, 1.5, wrapped.bucket.perSec, 1e-9)

	msg, err := wrapped.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, 1, inner.calls)
}

func TestWrapChatModel_CancelledContextSkipsCall(t *testing.T) {
	inner := &countingModel{}
	wrapped := WrapChatModel(inner, 1).(*ChatModel)
	require.True(t, wrapped.bucket.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := wrapped.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, inner.calls)
}

func TestWrapEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	assert.Same(t, inner, WrapEmbedder(inner, -1).(*countingEmbedder))

	wrapped := WrapEmbedder(inner, 120)
	vecs, err := wrapped.EmbedStrings(context.Background(), []string{"go", "rust"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 1, inner.calls)
}
