package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const defaultGeminiModel = "models/gemini-2.5-flash"

// GeminiChatModel 通过 genai SDK 调用 Gemini，实现 model.BaseChatModel
type GeminiChatModel struct {
	client    *genai.Client
	modelName string
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)

// NewGeminiChatModel 创建 Gemini 聊天模型
func NewGeminiChatModel(ctx context.Context, apiKey, modelName string) (*GeminiChatModel, error) {
	apiKey = strings.TrimSpace(apiKey)
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
	if modelName = strings.TrimSpace(modelName); modelName == "" {
		modelName = defaultGeminiModel
	}
	return &GeminiChatModel{client: client, modelName: modelName}, nil
}

// Generate 把 eino 消息转换为 genai 内容后调用 GenerateContent
func (g *GeminiChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{}, opts...)
	modelName := g.modelName
	if options.Model != nil && *options.Model != "" {
		modelName = *options.Model
	}

	contents, system := toGeminiContents(messages)
	if len(contents) == 0 {
		return nil, errors.New("prompt must not be empty")
	}

	var cfg *genai.GenerateContentConfig
	if system != nil || options.Temperature != nil || options.MaxTokens != nil {
		cfg = &genai.GenerateContentConfig{SystemInstruction: system, Temperature: options.Temperature}
		if options.MaxTokens != nil {
			cfg.MaxOutputTokens = int32(*options.MaxTokens)
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, errors.New("gemini returned an empty response")
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream 以单个分片返回 Generate 的结果
func (g *GeminiChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := g.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// toGeminiContents 系统消息合并为 SystemInstruction，assistant 映射为 model 角色
func toGeminiContents(messages []*schema.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemParts []*genai.Part
	for _, msg := range messages {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case schema.System:
			systemParts = append(systemParts, &genai.Part{Text: msg.Content})
		case schema.Assistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}
	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	return contents, system
}
