package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModelName = "gpt-4o-mini"

// OpenAIChatModel 通过 OpenAI 兼容的 chat/completions 接口生成文本，实现 model.BaseChatModel
type OpenAIChatModel struct {
	client    *openai.Client
	modelName string
	logger    zerolog.Logger
}

var _ model.BaseChatModel = (*OpenAIChatModel)(nil)

// NewOpenAIChatModel apiURL 为兼容接口的根地址（如 https://api.openai.com/v1），
// 为兼容旧配置也接受带 /chat/completions 后缀的完整地址
func NewOpenAIChatModel(apiKey, modelName, apiURL string, timeout time.Duration) (*OpenAIChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	mn := strings.TrimSpace(modelName)
	if mn == "" {
		mn = defaultOpenAIModelName
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimSuffix(strings.TrimSpace(apiURL), "/chat/completions"); base != "" {
		clientCfg.BaseURL = base
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	l := log.With().Str("component", "openai_chat").Str("model", mn).Logger()
	l.Info().Str("base_url", clientCfg.BaseURL).Msg("using OpenAI-compatible chat model")

	return &OpenAIChatModel{
		client:    openai.NewClientWithConfig(clientCfg),
		modelName: mn,
		logger:    l,
	}, nil
}

// Generate 实现 model.BaseChatModel 接口
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{}, opts...)

	req := openai.ChatCompletionRequest{Model: m.modelName}
	if options.Model != nil && *options.Model != "" {
		req.Model = *options.Model
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion 请求失败: %w", err)
	}
	m.logger.Debug().
		Int("choices", len(resp.Choices)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("chat completion response")
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项 (id=%s)", resp.ID)
	}
	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

// Stream 以单个分片返回 Generate 的结果
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
