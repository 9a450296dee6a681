package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"ai-interviewer/internal/logger"
)

// VectorCache 二级向量缓存，由 storage.Redis 实现
type VectorCache interface {
	GetVector(ctx context.Context, key string) ([]float64, bool, error)
	SetVector(ctx context.Context, key string, vector []float64, ttl time.Duration) error
}

// CachedEmbedder 在 Embedder 前加一层进程内 LRU 和可选的 Redis 缓存
type CachedEmbedder struct {
	next      embedding.Embedder
	model     string
	lru       *expirable.LRU[string, []float64]
	remote    VectorCache
	remoteTTL time.Duration
	logger    zerolog.Logger
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)

// CacheOption 配置 CachedEmbedder
type CacheOption func(*CachedEmbedder)

// WithRemoteCache 启用 Redis 二级缓存
func WithRemoteCache(c VectorCache, ttl time.Duration) CacheOption {
	return func(e *CachedEmbedder) {
		e.remote = c
		e.remoteTTL = ttl
	}
}

// WrapWithCache 包装 next；size 或 ttl 不大于 0 时不启用 LRU
func WrapWithCache(next embedding.Embedder, model string, size int, ttl time.Duration, opts ...CacheOption) *CachedEmbedder {
	e := &CachedEmbedder{
		next:   next,
		model:  model,
		logger: logger.Named("embedding_cache"),
	}
	if size > 0 && ttl > 0 {
		e.lru = expirable.NewLRU[string, []float64](size, nil, ttl)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedStrings 命中缓存的文本直接返回，其余一次性交给下游
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		keys[i] = CacheKey(c.model, text)
		if v, ok := c.lookup(ctx, keys[i]); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		if j >= len(vectors) {
			break
		}
		out[i] = vectors[j]
		c.store(ctx, keys[i], vectors[j])
	}
	return out, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float64, bool) {
	if c.lru != nil {
		if v, ok := c.lru.Get(key); ok {
			return cloneVector(v), true
		}
	}
	if c.remote != nil {
		v, ok, err := c.remote.GetVector(ctx, key)
		if err != nil {
			c.logger.Warn().Err(err).Msg("remote embedding cache lookup failed")
			return nil, false
		}
		if ok {
			if c.lru != nil {
				c.lru.Add(key, cloneVector(v))
			}
			return v, true
		}
	}
	return nil, false
}

func (c *CachedEmbedder) store(ctx context.Context, key string, v []float64) {
	if c.lru != nil {
		c.lru.Add(key, cloneVector(v))
	}
	if c.remote != nil {
		if err := c.remote.SetVector(ctx, key, v, c.remoteTTL); err != nil {
			c.logger.Warn().Err(err).Msg("failed to cache embedding remotely")
		}
	}
}

// CacheKey 由模型名和文本内容生成缓存键
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "|" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
