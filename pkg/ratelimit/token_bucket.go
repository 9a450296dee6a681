package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket 按每分钟请求数（QPM）发放令牌，模型服务商的配额都以 QPM 计
type TokenBucket struct {
	mu     sync.Mutex
	perSec float64
	burst  float64
	avail  float64
	last   time.Time
	now    func() time.Time
}

// NewTokenBucket burst 为 0 时取 QPM 的一半
func NewTokenBucket(qpm, burst int) *TokenBucket {
	qpm = max(qpm, 1)
	if burst <= 0 {
		burst = max(qpm/2, 1)
	}
	return &TokenBucket{
		perSec: float64(qpm) / 60,
		burst:  float64(burst),
		avail:  float64(burst),
		last:   time.Now(),
		now:    time.Now,
	}
}

// reserve 尝试取一个令牌，失败时返回距下一个令牌的时间。调用方持有锁
func (tb *TokenBucket) reserve() (time.Duration, bool) {
	t := tb.now()
	tb.avail = min(tb.burst, tb.avail+t.Sub(tb.last).Seconds()*tb.perSec)
	tb.last = t
	if tb.avail >= 1 {
		tb.avail--
		return 0, true
	}
	return time.Duration((1 - tb.avail) / tb.perSec * float64(time.Second)), false
}

// Allow 不等待，有令牌时消耗一个
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	_, ok := tb.reserve()
	return ok
}

// Wait 阻塞到拿到令牌，ctx 结束时返回 ctx.Err()
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		wait, ok := tb.reserve()
		tb.mu.Unlock()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
