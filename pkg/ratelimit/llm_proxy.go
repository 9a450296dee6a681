package ratelimit

import (
	"context"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel 调用前排队等令牌。失败重试由 Generation Gateway 负责
type ChatModel struct {
	next   model.BaseChatModel
	bucket *TokenBucket
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// WrapChatModel qpm <= 0 时原样返回
func WrapChatModel(m model.BaseChatModel, qpm int) model.BaseChatModel {
	if qpm <= 0 {
		return m
	}
	return &ChatModel{next: m, bucket: NewTokenBucket(qpm, 0)}
}

func (c *ChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.Generate(ctx, messages, opts...)
}

func (c *ChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.Stream(ctx, messages, opts...)
}

// Embedder 对向量接口限流，一次批量调用消耗一个令牌。
// 应包在缓存里面，命中缓存的文本不占配额。
type Embedder struct {
	next   embedding.Embedder
	bucket *TokenBucket
}

var _ embedding.Embedder = (*Embedder)(nil)

// WrapEmbedder qpm <= 0 时原样返回
func WrapEmbedder(e embedding.Embedder, qpm int) embedding.Embedder {
	if qpm <= 0 {
		return e
	}
	return &Embedder{next: e, bucket: NewTokenBucket(qpm, 0)}
}

func (e *Embedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if err := e.bucket.Wait(ctx); err != nil {
		return nil, err
	}
	return e.next.EmbedStrings(ctx, texts, opts...)
}
