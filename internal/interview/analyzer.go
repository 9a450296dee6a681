package interview

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-interviewer/internal/gateway"
	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/parser"
	"ai-interviewer/internal/session"
	"ai-interviewer/internal/tracing"
	"ai-interviewer/internal/types"
)

const (
	// DefaultProfileScore 模型没有给出分数时使用
	DefaultProfileScore = 75
	// LegacyQuestionCount 一次性生成的问题数
	LegacyQuestionCount = 5
)

// Analyzer 简历初评、面试总结和一次性出题
type Analyzer struct {
	gen    gateway.Generator
	store  *session.Store
	logger zerolog.Logger
}

// NewAnalyzer 创建 Analyzer
func NewAnalyzer(gen gateway.Generator, store *session.Store) *Analyzer {
	return &Analyzer{
		gen:    gen,
		store:  store,
		logger: logger.Named("analyzer"),
	}
}

// Analyze 给简历打 0-100 分并生成两句介绍
func (a *Analyzer) Analyze(ctx context.Context, profileText string) (*types.ProfileAnalysis, error) {
	ctx, span := interviewTracer.Start(ctx, "Analyzer.Analyze")
	defer span.End()

	if strings.TrimSpace(profileText) == "" {
		return nil, types.NewNoProfileTextError("analyze", "")
	}
	raw, err := a.gen.Invoke(ctx, AnalysisPrompt(profileText))
	if err != nil {
		return nil, err
	}

	score, intro, found := parser.ParseAnalysis(raw)
	if !found {
		a.logger.Warn().Msg("no score in analysis response, using default")
		score = DefaultProfileScore
	}
	score = max(0, min(100, score))
	span.SetAttributes(attribute.Int("profile.score", score))
	return &types.ProfileAnalysis{Score: score, Intro: intro}, nil
}

// Start 初评简历并用结果创建会话
func (a *Analyzer) Start(ctx context.Context, candidateName, profileText string) (*types.Session, *types.ProfileAnalysis, error) {
	ctx, span := interviewTracer.Start(ctx, "Analyzer.Start", trace.WithAttributes(tracing.CandidateAttr(candidateName)))
	defer span.End()

	analysis, err := a.Analyze(ctx, profileText)
	if err != nil {
		return nil, nil, err
	}
	sess, err := a.store.Create(ctx, session.CreateParams{
		CandidateName: candidateName,
		ProfileText:   profileText,
		Intro:         analysis.Intro,
		Score:         float64(analysis.Score),
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, analysis, nil
}

// Summarize 总结已保存的面试
func (a *Analyzer) Summarize(ctx context.Context, sessionID string) (*types.InterviewSummary, error) {
	sess, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return a.SummarizeTranscript(ctx, sess.ProfileText, sess.Score, types.PairTurns(sess.Turns))
}

// SummarizeTranscript 根据调用方提供的问答总结面试，不读取会话
func (a *Analyzer) SummarizeTranscript(ctx context.Context, profileText string, score float64, pairs []types.QA) (*types.InterviewSummary, error) {
	ctx, span := interviewTracer.Start(ctx, "Analyzer.Summarize")
	defer span.End()
	span.SetAttributes(attribute.Int("interview.pairs", len(pairs)))

	raw, err := a.gen.Invoke(ctx, SummaryPrompt(profileText, score, pairs))
	if err != nil {
		return nil, err
	}
	fields := parser.ParseSummary(raw)
	return &types.InterviewSummary{
		Summary:    fields.Summary,
		Strengths:  fields.Strengths,
		Weaknesses: fields.Weaknesses,
	}, nil
}

// GenerateQuestions 根据简历一次性生成最多5个问题
func (a *Analyzer) GenerateQuestions(ctx context.Context, profileText string) ([]string, error) {
	if strings.TrimSpace(profileText) == "" {
		return nil, types.NewNoProfileTextError("generate_questions", "")
	}
	raw, err := a.gen.Invoke(ctx, QuestionsPrompt(profileText))
	if err != nil {
		return nil, err
	}
	return parser.ExtractQuestions(raw, LegacyQuestionCount), nil
}
