package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelConfig 创建聊天模型所需的配置
type ChatModelConfig struct {
	Provider string // gemini | openai | mock
	APIKey   string
	APIURL   string
	Model    string
	Timeout  time.Duration
}

// NewChatModel 按 Provider 创建聊天模型
func NewChatModel(ctx context.Context, cfg ChatModelConfig) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiChatModel(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAIChatModel(cfg.APIKey, cfg.Model, cfg.APIURL, cfg.Timeout)
	case "mock":
		return NewDemoChatModel(), nil
	default:
		return nil, fmt.Errorf("不支持的模型提供方: %s", cfg.Provider)
	}
}
