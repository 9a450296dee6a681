package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-interviewer/internal/types"
)

// scriptedModel 按顺序返回预设结果
type scriptedModel struct {
	results []func() (*schema.Message, error)
	calls   int
	prompts []string
}

func (m *scriptedModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.prompts = append(m.prompts, msgs[len(msgs)-1].Content)
	i := m.calls
	m.calls++
	if i >= len(m.results) {
		return nil, errors.New("script exhausted")
	}
	return m.results[i]()
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func reply(s string) func() (*schema.Message, error) {
	return func() (*schema.Message, error) { return schema.AssistantMessage(s, nil), nil }
}

func fail(msg string) func() (*schema.Message, error) {
	return func() (*schema.Message, error) { return nil, errors.New(msg) }
}

// timerRecorder 记录每次等待的时长并立即触发
type timerRecorder struct {
	durations []time.Duration
	onStart   func()
	fire      bool
}

func (r *timerRecorder) newTimer() backoff.Timer {
	return &recordedTimer{rec: r, c: make(chan time.Time, 1)}
}

type recordedTimer struct {
	rec *timerRecorder
	c   chan time.Time
}

func (t *recordedTimer) Start(d time.Duration) {
	t.rec.durations = append(t.rec.durations, d)
	if t.rec.onStart != nil {
		t.rec.onStart()
	}
	if t.rec.fire {
		t.c <- time.Now()
	}
}

func (t *recordedTimer) Stop() {}

func (t *recordedTimer) C() <-chan time.Time { return t.c }

func newRecorder() *timerRecorder { return &timerRecorder{fire: true} }

func newTestGateway(m model.BaseChatModel, rec *timerRecorder) *Gateway {
	return New(m,
		WithTimer(rec.newTimer),
		WithLogger(zerolog.Nop()),
	)
}

func TestInvoke_FirstAttemptSucceeds(t *testing.T) {
	m := &scriptedModel{results: []func() (*schema.Message, error){reply("hello")}}
	rec := newRecorder()

	out, err := newTestGateway(m, rec).Invoke(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, m.calls)
	assert.Empty(t, rec.durations)
	assert.Equal(t, []string{"say hello"}, m.prompts)
}

func TestInvoke_RecoversOnThirdAttempt(t *testing.T) {
	m := &scriptedModel{results: []func() (*schema.Message, error){
		fail("timeout"),
		func() (*schema.Message, error) { return nil, nil },
		reply("third time lucky"),
	}}
	rec := newRecorder()

	out, err := newTestGateway(m, rec).Invoke(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", out)
	assert.Equal(t, 3, m.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.durations)
}

func TestInvoke_ExhaustsAttempts(t *testing.T) {
	m := &scriptedModel{results: []func() (*schema.Message, error){
		fail("first"), fail("second"), fail("last"),
	}}
	rec := newRecorder()

	_, err := newTestGateway(m, rec).Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrGenerationFailure)
	assert.Contains(t, err.Error(), "last")
	assert.Equal(t, 3, m.calls, "失败后恰好调用三次")
	assert.Len(t, rec.durations, 2, "只在两次尝试之间等待")
}

func TestInvoke_CustomPolicy(t *testing.T) {
	m := &scriptedModel{results: []func() (*schema.Message, error){fail("a"), fail("b")}}
	rec := newRecorder()

	g := New(m, WithMaxAttempts(2), WithRetryDelay(10*time.Millisecond), WithTimer(rec.newTimer), WithLogger(zerolog.Nop()))
	_, err := g.Invoke(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrGenerationFailure)
	assert.Equal(t, 2, m.calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, rec.durations)
}

func TestInvoke_ContextCancelledDuringWait(t *testing.T) {
	m := &scriptedModel{results: []func() (*schema.Message, error){fail("a"), reply("never")}}
	ctx, cancel := context.WithCancel(context.Background())
	rec := &timerRecorder{onStart: cancel}

	g := New(m, WithTimer(rec.newTimer), WithLogger(zerolog.Nop()))
	_, err := g.Invoke(ctx, "p")
	assert.ErrorIs(t, err, types.ErrGenerationFailure)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.calls)
	assert.Len(t, rec.durations, 1)
}

func TestInvoke_ContextCancelledDuringGenerate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &scriptedModel{results: []func() (*schema.Message, error){
		func() (*schema.Message, error) {
			cancel()
			return nil, context.Canceled
		},
		reply("never"),
	}}
	rec := newRecorder()

	_, err := newTestGateway(m, rec).Invoke(ctx, "p")
	assert.ErrorIs(t, err, types.ErrGenerationFailure)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.calls)
	assert.Empty(t, rec.durations)
}

func TestInvoke_RealTimerZeroDelay(t *testing.T) {
	m := &scriptedModel{results: []func() (*schema.Message, error){fail("a"), reply("ok")}}

	g := New(m, WithRetryDelay(0), WithLogger(zerolog.Nop()))
	out, err := g.Invoke(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, m.calls)
}
