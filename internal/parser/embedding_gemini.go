package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"google.golang.org/genai"

	"ai-interviewer/internal/config"
)

// GeminiEmbedder 通过 genai SDK 调用 Gemini 向量模型
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	taskType   string
	dimensions int
}

var _ embedding.Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder 创建 Gemini Embedder
func NewGeminiEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (*GeminiEmbedder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{
		client:     client,
		model:      model,
		taskType:   cfg.TaskType,
		dimensions: cfg.Dimensions,
	}, nil
}

// ModelName 返回模型名
func (g *GeminiEmbedder) ModelName() string {
	return g.model
}

// EmbedStrings 一次请求嵌入全部文本
func (g *GeminiEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	model := g.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}

	var cfg *genai.EmbedContentConfig
	if g.taskType != "" || g.dimensions > 0 {
		cfg = &genai.EmbedContentConfig{TaskType: g.taskType}
		if g.dimensions > 0 {
			dim := int32(g.dimensions)
			cfg.OutputDimensionality = &dim
		}
	}

	resp, err := g.client.Models.EmbedContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("no embedding values returned")
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("embedding %d is empty", i)
		}
		out[i] = Float32To64(e.Values)
	}
	return out, nil
}

// Float32To64 转换向量精度
func Float32To64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Float64To32 转换向量精度
func Float64To32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
