package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-interviewer/internal/constants"
)

// DistributedLocker 跨进程的锁，由 storage.Redis 实现。
// AcquireLock 未抢到锁时返回空 token。
type DistributedLocker interface {
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}

// lockPollInterval 分布式锁的轮询间隔
var lockPollInterval = 50 * time.Millisecond

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// keyedLocker 按 key 的互斥锁，等待时响应上下文取消
type keyedLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{entries: make(map[string]*lockEntry)}
}

// Lock 获取 key 对应的锁
func (k *keyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.done(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.done(key, e)
		})
	}, nil
}

func (k *keyedLocker) done(key string, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// size 当前跟踪的 key 数量
func (k *keyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func sessionLockKey(sessionID string) string {
	return fmt.Sprintf(constants.KeySessionLock, sessionID)
}

// acquireDistributed 轮询直到拿到锁或上下文结束
func acquireDistributed(ctx context.Context, l DistributedLocker, key string, ttl time.Duration) (string, error) {
	for {
		token, err := l.AcquireLock(ctx, key, ttl)
		if err != nil {
			return "", fmt.Errorf("获取会话分布式锁失败: %w", err)
		}
		if token != "" {
			return token, nil
		}
		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}
