package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockResponse 定义了 MockChatClient 的单次预期响应
type MockResponse struct {
	Content string
	Error   error
	// Nil 为 true 时返回 (nil, nil)，模拟模型无输出
	Nil bool
}

// ErrScriptExhausted 预设响应用完
var ErrScriptExhausted = errors.New("mock client has run out of sequential responses")

// MockChatClient 按顺序返回预设响应的 model.BaseChatModel，可并发调用
type MockChatClient struct {
	mu        sync.Mutex
	responses []MockResponse
	index     int
	responder func(prompt string) (string, error)
	received  []string
}

var _ model.BaseChatModel = (*MockChatClient)(nil)

// NewMockChatClientSequential 创建一个按顺序返回不同响应的 MockChatClient
func NewMockChatClientSequential(responses ...MockResponse) *MockChatClient {
	return &MockChatClient{responses: responses}
}

// NewMockChatClientFunc 根据最后一条消息动态生成响应
func NewMockChatClientFunc(responder func(prompt string) (string, error)) *MockChatClient {
	return &MockChatClient{responder: responder}
}

// Generate 返回下一条预设响应
func (m *MockChatClient) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := ""
	if len(input) > 0 && input[len(input)-1] != nil {
		prompt = input[len(input)-1].Content
	}

	m.mu.Lock()
	m.received = append(m.received, prompt)
	if m.responder != nil {
		responder := m.responder
		m.mu.Unlock()
		out, err := responder(prompt)
		if err != nil {
			return nil, err
		}
		return schema.AssistantMessage(out, nil), nil
	}
	if m.index >= len(m.responses) {
		m.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	resp := m.responses[m.index]
	m.index++
	m.mu.Unlock()

	switch {
	case resp.Error != nil:
		return nil, resp.Error
	case resp.Nil:
		return nil, nil
	default:
		return schema.AssistantMessage(resp.Content, nil), nil
	}
}

// Stream 以单个分片返回 Generate 的结果
func (m *MockChatClient) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls 已收到的调用次数
func (m *MockChatClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

// ReceivedPrompts 返回每次调用的最后一条消息内容
func (m *MockChatClient) ReceivedPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.received...)
}

// NewDemoChatModel 离线演示用的模型：按提示词类型返回格式正确的固定内容
func NewDemoChatModel() *MockChatClient {
	var mu sync.Mutex
	questionNo := 0
	return NewMockChatClientFunc(func(prompt string) (string, error) {
		lower := strings.ToLower(prompt)
		switch {
		case strings.Contains(lower, "technical_depth"):
			return `{"clarity": 14, "coherence": 13, "confidence": 12, "technical_depth": 15, "engagement": 14, "feedback": "Structured answer with room for more concrete detail."}`, nil
		case strings.Contains(lower, "rubric"):
			return `{"score": 14, "feedback": "Clear answer; add measurable outcomes."}`, nil
		case strings.Contains(lower, "strengths"):
			return `{"summary": "The candidate communicated clearly.", "strengths": ["Communication"], "weaknesses": ["Depth on system design"]}`, nil
		case strings.Contains(lower, "rate the candidate"):
			return `{"score": 75, "intro": "The candidate brings hands-on engineering experience. They are ready to discuss recent projects."}`, nil
		case strings.Contains(lower, "generate 5"):
			return "1. Walk me through your most recent project.\n2. What was the hardest bug you fixed?\n3. How do you test your code?\n4. How do you handle disagreements?\n5. Where do you want to grow next?", nil
		default:
			mu.Lock()
			questionNo++
			n := questionNo
			mu.Unlock()
			return fmt.Sprintf("Question %d: Tell me about a challenge from your experience (#%d).", n, n), nil
		}
	})
}
