package interview

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"ai-interviewer/internal/gateway"
	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/parser"
	"ai-interviewer/internal/session"
	"ai-interviewer/internal/types"
)

const (
	// MaxSubScore 单项分数上限
	MaxSubScore = 20.0
	// NeutralDimensionScore 详细评估失败时每个维度的分数
	NeutralDimensionScore = 10.0

	fallbackSimpleFeedback   = "The answer was recorded, but an automatic evaluation was not available."
	fallbackDetailedFeedback = "Automatic evaluation was not available, so neutral scores were assigned to every dimension."
)

// Evaluator 通过模型给单个回答打分，失败时返回中性结果而不是错误
type Evaluator struct {
	gen    gateway.Generator
	store  *session.Store
	logger zerolog.Logger
}

// EvaluatorOption 配置 Evaluator
type EvaluatorOption func(*Evaluator)

// WithEvaluatorLogger 设置日志记录器
func WithEvaluatorLogger(l zerolog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// NewEvaluator 创建评估器
func NewEvaluator(gen gateway.Generator, store *session.Store, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		gen:    gen,
		store:  store,
		logger: logger.Named("evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScoreSimple 给出 [0,20] 的分数和一句反馈，NewTotal = runningTotal + SubScore。
// 结果作为系统消息记入会话，分数同时累加到会话总分。
// 只有 SessionNotFound 会返回给调用方。
func (e *Evaluator) ScoreSimple(ctx context.Context, sessionID, question, answer string, runningTotal float64) (*types.Evaluation, error) {
	ctx, span := interviewTracer.Start(ctx, "Evaluator.ScoreSimple")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if _, err := e.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	result := &types.Evaluation{}
	fields, err := e.evaluateSimple(ctx, sessionID, question, answer)
	if err != nil {
		e.logger.Warn().Err(err).Str("session_id", sessionID).Msg("simple evaluation fell back to neutral result")
		result.SubScore = 0
		result.Feedback = fallbackSimpleFeedback
		result.Fallback = true
	} else {
		result.SubScore = clampScore(fields.Score)
		result.Feedback = fields.Feedback
	}
	result.NewTotal = runningTotal + result.SubScore
	span.SetAttributes(attribute.Float64("evaluation.sub_score", result.SubScore), attribute.Bool("evaluation.fallback", result.Fallback))

	audit := fmt.Sprintf("Evaluation: %s/20. %s", formatScore(result.SubScore), result.Feedback)
	e.recordAudit(ctx, sessionID, audit, session.WithScoreDelta(result.SubScore))
	return result, nil
}

// ScoreDetailed 五个维度独立打分并求平均（保留两位小数）。
// 失败时所有维度为 10，平均分 10.0。
func (e *Evaluator) ScoreDetailed(ctx context.Context, sessionID, question, answer string) (*types.DetailedEvaluation, error) {
	ctx, span := interviewTracer.Start(ctx, "Evaluator.ScoreDetailed")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if _, err := e.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	var scores [5]float64
	var feedback string
	fallback := false

	fields, err := e.evaluateDetailed(ctx, sessionID, question, answer)
	if err != nil {
		e.logger.Warn().Err(err).Str("session_id", sessionID).Msg("detailed evaluation fell back to neutral result")
		for i := range scores {
			scores[i] = NeutralDimensionScore
		}
		feedback = fallbackDetailedFeedback
		fallback = true
	} else {
		for i, s := range fields.Scores {
			scores[i] = clampScore(s)
		}
		feedback = fields.Feedback
	}

	result := &types.DetailedEvaluation{
		Clarity:        scores[0],
		Coherence:      scores[1],
		Confidence:     scores[2],
		TechnicalDepth: scores[3],
		Engagement:     scores[4],
		Average:        averageOf(scores),
		Feedback:       feedback,
		Fallback:       fallback,
	}
	span.SetAttributes(attribute.Float64("evaluation.average", result.Average), attribute.Bool("evaluation.fallback", fallback))

	audit := fmt.Sprintf("Detailed evaluation: clarity %s, coherence %s, confidence %s, technical_depth %s, engagement %s, average %.2f. %s",
		formatScore(result.Clarity), formatScore(result.Coherence), formatScore(result.Confidence),
		formatScore(result.TechnicalDepth), formatScore(result.Engagement), result.Average, result.Feedback)
	e.recordAudit(ctx, sessionID, audit)
	return result, nil
}

func (e *Evaluator) evaluateSimple(ctx context.Context, sessionID, question, answer string) (parser.ScoreFields, error) {
	raw, err := e.gen.Invoke(ctx, RubricPrompt(question, answer))
	if err != nil {
		return parser.ScoreFields{}, types.NewEvaluationError(sessionID, "oracle call failed", err)
	}
	fields, tier := parser.ParseScore(raw)
	if tier == parser.TierDefault {
		return parser.ScoreFields{}, types.NewEvaluationError(sessionID, "no score in response", nil)
	}
	e.logger.Debug().Str("session_id", sessionID).Stringer("tier", tier).Msg("score parsed")
	return fields, nil
}

func (e *Evaluator) evaluateDetailed(ctx context.Context, sessionID, question, answer string) (parser.DetailedFields, error) {
	raw, err := e.gen.Invoke(ctx, DetailedPrompt(question, answer))
	if err != nil {
		return parser.DetailedFields{}, types.NewEvaluationError(sessionID, "oracle call failed", err)
	}
	fields, tier := parser.ParseDetailed(raw)
	if tier == parser.TierDefault {
		return parser.DetailedFields{}, types.NewEvaluationError(sessionID, "missing dimensions in response", nil)
	}
	e.logger.Debug().Str("session_id", sessionID).Stringer("tier", tier).Msg("dimensions parsed")
	return fields, nil
}

// recordAudit 写入失败只记日志，评估结果不受影响
func (e *Evaluator) recordAudit(ctx context.Context, sessionID, text string, opts ...session.AppendOption) {
	if _, err := e.store.Append(ctx, sessionID, types.RoleSystem, strings.TrimSpace(text), opts...); err != nil {
		ev := e.logger.Warn()
		if errors.Is(err, types.ErrSessionNotFound) {
			ev = e.logger.Error()
		}
		ev.Err(err).Str("session_id", sessionID).Msg("record evaluation turn failed")
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(MaxSubScore, v))
}

func averageOf(scores [5]float64) float64 {
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return math.Round(sum/float64(len(scores))*100) / 100
}
