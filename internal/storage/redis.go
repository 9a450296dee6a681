package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ai-interviewer/internal/config"
	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/feeds"
	"ai-interviewer/internal/parser"
	"ai-interviewer/internal/session"
	"ai-interviewer/internal/tracing"
)

// ErrNotFound is returned when a key is not found in Redis.
var ErrNotFound = redis.Nil

var redisTracer = otel.Tracer("ai-interviewer/storage/redis")

// Redis操作前缀采样率配置
var redisKeySamplingRates = map[string]float64{
	constants.AppPrefix + ":" + constants.InterviewModulePrefix + ":": 0.5,
	constants.AppPrefix + ":" + constants.EmbeddingModulePrefix + ":": 0.01,
	constants.AppPrefix + ":" + constants.FeedModulePrefix + ":":      1.0,
}

var (
	rnd      = rand.New(rand.NewSource(time.Now().UnixNano()))
	rndMutex sync.Mutex
)

// releaseLockScript 只有持有者才能删除锁
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}
	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}
	return randFloat() < 0.05
}

func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

var (
	_ session.DistributedLocker = (*Redis)(nil)
	_ feeds.RunLocker           = (*Redis)(nil)
	_ parser.VectorCache        = (*Redis)(nil)
)

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MaxRetries:   cfg.MaxRetries,
	})

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// startSpan 按采样率创建span，未采样时返回 nil
func startSpan(ctx context.Context, name, operation, key string) (context.Context, trace.Span) {
	if !shouldSampleRedisOp(key) {
		return ctx, nil
	}
	ctx, span := redisTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", operation),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, redis.Nil):
		span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
		span.SetStatus(codes.Ok, "key not found")
	default:
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
	}
	span.End()
}

// GetVector 读取缓存的向量，不存在时 ok 为 false
func (r *Redis) GetVector(ctx context.Context, key string) ([]float64, bool, error) {
	if r.Client == nil {
		return nil, false, fmt.Errorf("redis client is not initialized")
	}
	cacheKey := fmt.Sprintf(constants.KeyEmbeddingVector, key)
	ctx, span := startSpan(ctx, "Redis.GetVector", "HGET", cacheKey)
	raw, err := r.Client.HGet(ctx, cacheKey, "vector").Result()
	endSpan(span, err)
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var vector []float64
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, false, fmt.Errorf("反序列化向量失败: %w", err)
	}
	return vector, true, nil
}

// SetVector 写入向量缓存
func (r *Redis) SetVector(ctx context.Context, key string, vector []float64, ttl time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("序列化向量失败: %w", err)
	}

	cacheKey := fmt.Sprintf(constants.KeyEmbeddingVector, key)
	ctx, span := startSpan(ctx, "Redis.SetVector", "HSET", cacheKey)
	pipe := r.Client.Pipeline()
	pipe.HSet(ctx, cacheKey, "vector", vectorJSON, "dims", len(vector))
	if ttl > 0 {
		pipe.Expire(ctx, cacheKey, ttl)
	}
	_, err = pipe.Exec(ctx)
	endSpan(span, err)
	if err != nil {
		return fmt.Errorf("设置向量缓存失败: %w", err)
	}
	return nil
}

// AcquireLock 尝试获取一个分布式锁，未抢到时返回空字符串
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	token, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	ok, err := r.Client.SetNX(ctx, lockKey, token.String(), expiration).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token.String(), nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	res, err := releaseLockScript.Run(ctx, r.Client, []string{lockKey}, lockValue).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
