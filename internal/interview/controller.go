// Package interview 实现面试状态机、答案评估、简历初评和面试总结。
package interview

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/gateway"
	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/parser"
	"ai-interviewer/internal/session"
	"ai-interviewer/internal/tracing"
	"ai-interviewer/internal/types"
)

const (
	// DefaultMaxQuestions 一场面试最多的面试官问题数
	DefaultMaxQuestions = 5
	// DefaultRegenerateLimit 每次推进最多生成问题的次数
	DefaultRegenerateLimit = 3
	// DefaultHistoryWindow 追问提示词中携带的最近问题数
	DefaultHistoryWindow = 3
)

var interviewTracer = otel.Tracer("ai-interviewer/interview")

// CompletionHook 会话进入 completed 后调用，错误只记录日志
type CompletionHook func(ctx context.Context, sess *types.Session) error

// Controller 面试状态机：AWAITING_FIRST_QUESTION -> 1..5 问 -> COMPLETED
type Controller struct {
	gen             gateway.Generator
	store           *session.Store
	maxQuestions    int
	regenerateLimit int
	historyWindow   int
	closingMessage  string
	hooks           []CompletionHook
	logger          zerolog.Logger
}

// ControllerOption 配置 Controller
type ControllerOption func(*Controller)

// WithMaxQuestions 设置问题上限
func WithMaxQuestions(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.maxQuestions = n
		}
	}
}

// WithRegenerateLimit 设置重复/空问题的重新生成上限
func WithRegenerateLimit(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.regenerateLimit = n
		}
	}
}

// WithHistoryWindow 设置追问时携带的问题数
func WithHistoryWindow(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.historyWindow = n
		}
	}
}

// WithClosingMessage 替换结束语
func WithClosingMessage(msg string) ControllerOption {
	return func(c *Controller) {
		if strings.TrimSpace(msg) != "" {
			c.closingMessage = msg
		}
	}
}

// WithCompletionHook 注册面试结束回调
func WithCompletionHook(h CompletionHook) ControllerOption {
	return func(c *Controller) {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
}

// WithControllerLogger 设置日志记录器
func WithControllerLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController 创建状态机
func NewController(gen gateway.Generator, store *session.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		gen:             gen,
		store:           store,
		maxQuestions:    DefaultMaxQuestions,
		regenerateLimit: DefaultRegenerateLimit,
		historyWindow:   DefaultHistoryWindow,
		closingMessage:  constants.DefaultClosingMessage,
		logger:          logger.Named("interview"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxQuestions 问题上限
func (c *Controller) MaxQuestions() int {
	return c.maxQuestions
}

// Advance 记录候选人的回答并给出下一个问题，达到上限后结束面试。
// 只有空白的 lastAnswer 视为没有回答。
// 生成失败或问题无法去重时会话保持不变。
func (c *Controller) Advance(ctx context.Context, sessionID, lastAnswer string) (*types.AdvanceResult, error) {
	ctx, span := interviewTracer.Start(ctx, "Controller.Advance")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	unlock, err := c.store.Lock(ctx, sessionID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}
	result, finished, err := c.advanceLocked(ctx, sessionID, strings.TrimSpace(lastAnswer))
	unlock()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("interview.completed", result.Completed))
	if finished {
		c.runHooks(ctx, sessionID)
	}
	return result, nil
}

// advanceLocked 在持有会话锁时执行，finished 表示本次调用完成了状态转换
func (c *Controller) advanceLocked(ctx context.Context, sessionID, answer string) (*types.AdvanceResult, bool, error) {
	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if sess.Completed() {
		return c.closingResult(), false, nil
	}

	asked := sess.Questions()
	if len(asked) >= c.maxQuestions {
		if answer != "" {
			if _, err := c.store.Append(ctx, sessionID, types.RoleCandidate, answer); err != nil {
				return nil, false, err
			}
		}
		if _, err := c.store.Append(ctx, sessionID, types.RoleSystem, c.closingMessage,
			session.WithStatus(types.StatusCompleted),
			session.WithEvent(completedEvent(sess, time.Now().UTC()))); err != nil {
			return nil, false, err
		}
		c.logger.Info().Str("session_id", sessionID).Int("questions", len(asked)).Msg("interview completed")
		return c.closingResult(), true, nil
	}

	question, err := c.nextQuestion(ctx, sess, answer)
	if err != nil {
		return nil, false, err
	}

	if answer != "" {
		if _, err := c.store.Append(ctx, sessionID, types.RoleCandidate, answer); err != nil {
			return nil, false, err
		}
	}
	if _, err := c.store.Append(ctx, sessionID, types.RoleInterviewer, question); err != nil {
		return nil, false, err
	}
	c.logger.Info().
		Str("session_id", sessionID).
		Int("question_no", len(asked)+1).
		Msg("question asked")
	return &types.AdvanceResult{Question: &question}, false, nil
}

// nextQuestion 生成一个非空且未问过的问题，最多生成 regenerateLimit 次
func (c *Controller) nextQuestion(ctx context.Context, sess *types.Session, answer string) (string, error) {
	asked := sess.Questions()
	seen := make(map[string]struct{}, len(asked))
	for _, q := range asked {
		seen[q] = struct{}{}
	}

	prompt := c.buildPrompt(sess, asked, answer)
	for attempt := 1; attempt <= c.regenerateLimit; attempt++ {
		if attempt > 1 {
			prompt = withAvoidList(c.buildPrompt(sess, asked, answer), asked)
		}
		raw, err := c.gen.Invoke(ctx, prompt)
		if err != nil {
			return "", err
		}
		question := parser.ExtractQuestion(raw)
		if question == "" {
			c.logger.Warn().Str("session_id", sess.ID).Int("attempt", attempt).Msg("generated question is empty, regenerating")
			continue
		}
		if _, dup := seen[question]; dup {
			c.logger.Warn().Str("session_id", sess.ID).Int("attempt", attempt).Msg("generated question is a duplicate, regenerating")
			continue
		}
		return question, nil
	}
	return "", types.NewDuplicateQuestionError(sess.ID, c.regenerateLimit)
}

func (c *Controller) buildPrompt(sess *types.Session, asked []string, answer string) string {
	if len(asked) == 0 {
		return OpeningPrompt(sess.ProfileText, sess.Score)
	}
	recent := asked
	if len(recent) > c.historyWindow {
		recent = recent[len(recent)-c.historyWindow:]
	}
	if answer == "" {
		if last, ok := sess.LastTurn(types.RoleCandidate); ok {
			answer = last.Content
		}
	}
	return FollowUpPrompt(recent, answer)
}

func (c *Controller) closingResult() *types.AdvanceResult {
	msg := c.closingMessage
	return &types.AdvanceResult{Completed: true, ClosingMessage: &msg}
}

// runHooks 使用不带取消的上下文，请求结束后回调仍可完成
func (c *Controller) runHooks(ctx context.Context, sessionID string) {
	if len(c.hooks) == 0 {
		return
	}
	hookCtx := context.WithoutCancel(ctx)
	sess, err := c.store.Get(hookCtx, sessionID)
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("load completed session for hooks failed")
		return
	}
	for _, h := range c.hooks {
		if err := h(hookCtx, sess.Clone()); err != nil {
			c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("completion hook failed")
		}
	}
}
