package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"ai-interviewer/internal/config"
	"ai-interviewer/internal/logger"
)

// OpenAIEmbedder 调用 OpenAI 兼容的 /embeddings 接口，实现 embedding.Embedder
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     zerolog.Logger
}

var _ embedding.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder base_url 为兼容接口根地址，带 /embeddings 后缀也可以
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/embeddings"); base != "" {
		clientCfg.BaseURL = base
	}
	clientCfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: cfg.Dimensions,
		logger:     logger.Named("openai_embedder"),
	}, nil
}

// GetDimensions 返回配置的向量维度
func (a *OpenAIEmbedder) GetDimensions() int {
	return a.dimensions
}

// ModelName 返回模型名，用作缓存键的一部分
func (a *OpenAIEmbedder) ModelName() string {
	return a.model
}

// EmbedStrings 将文本转换为向量，返回顺序与输入一致
func (a *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	model := a.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(model),
		Dimensions:     a.dimensions,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings 请求失败: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(texts), len(resp.Data))
	}

	// 响应不保证按输入顺序返回，按 index 还原
	out := make([][]float64, len(texts))
	for _, entry := range resp.Data {
		if entry.Index < 0 || entry.Index >= len(out) {
			return nil, fmt.Errorf("向量索引越界: %d", entry.Index)
		}
		out[entry.Index] = Float32To64(entry.Embedding)
	}

	a.logger.Debug().
		Int("texts", len(texts)).
		Int("dim", len(out[0])).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("embedded texts")
	return out, nil
}
