package handler

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"ai-interviewer/internal/interview"
	"ai-interviewer/internal/session"
	"ai-interviewer/internal/types"
)

// TranscriptReader 读取已归档的面试记录
type TranscriptReader interface {
	GetTranscript(ctx context.Context, sessionID string) (*types.Transcript, error)
}

// InterviewHandler 面试相关接口
type InterviewHandler struct {
	store       *session.Store
	controller  *interview.Controller
	evaluator   *interview.Evaluator
	analyzer    *interview.Analyzer
	transcripts TranscriptReader
}

// InterviewOption 配置 InterviewHandler
type InterviewOption func(*InterviewHandler)

// WithTranscripts 启用归档记录查询接口
func WithTranscripts(r TranscriptReader) InterviewOption {
	return func(h *InterviewHandler) {
		h.transcripts = r
	}
}

// NewInterviewHandler 创建面试处理器
func NewInterviewHandler(store *session.Store, controller *interview.Controller, evaluator *interview.Evaluator, analyzer *interview.Analyzer, opts ...InterviewOption) *InterviewHandler {
	h := &InterviewHandler{
		store:      store,
		controller: controller,
		evaluator:  evaluator,
		analyzer:   analyzer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProfileRequest 简历初评 / 创建会话请求
type ProfileRequest struct {
	CandidateName string `json:"candidate_name"`
	ResumeText    string `json:"resume_text"`
}

// CreateSessionRequest 直接创建会话，分数和介绍可选
type CreateSessionRequest struct {
	CandidateName string  `json:"candidate_name"`
	ResumeText    string  `json:"resume_text"`
	Score         float64 `json:"score"`
	Intro         string  `json:"intro"`
}

// NextRequest 推进面试
type NextRequest struct {
	SessionID  string `json:"session_id"`
	LastAnswer string `json:"last_answer"`
}

// ScoreRequest 单题评分
type ScoreRequest struct {
	SessionID    string  `json:"session_id"`
	Question     string  `json:"question"`
	Answer       string  `json:"answer"`
	RunningTotal float64 `json:"running_total"`
}

// SummaryRequest 会话 id 优先；否则使用请求中的简历、分数和问答
type SummaryRequest struct {
	SessionID    string     `json:"session_id"`
	ResumeText   string     `json:"resume_text"`
	Score        float64    `json:"score"`
	Conversation []types.QA `json:"conversation"`
}

// HandleAnalyze 初评简历并创建会话
func (h *InterviewHandler) HandleAnalyze(ctx context.Context, c *app.RequestContext) {
	var req ProfileRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	sess, analysis, err := h.analyzer.Start(ctx, req.CandidateName, req.ResumeText)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"session_id": sess.ID,
		"score":      analysis.Score,
		"intro":      analysis.Intro,
	})
}

// HandleCreateSession 不经初评直接创建会话
func (h *InterviewHandler) HandleCreateSession(ctx context.Context, c *app.RequestContext) {
	var req CreateSessionRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	sess, err := h.store.Create(ctx, session.CreateParams{
		CandidateName: req.CandidateName,
		ProfileText:   req.ResumeText,
		Intro:         req.Intro,
		Score:         req.Score,
	})
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, sess)
}

// HandleGetSession 返回会话及全部轮次
func (h *InterviewHandler) HandleGetSession(ctx context.Context, c *app.RequestContext) {
	sess, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, sess)
}

// HandleGetTranscript 返回面试结束时归档的完整记录
func (h *InterviewHandler) HandleGetTranscript(ctx context.Context, c *app.RequestContext) {
	if h.transcripts == nil {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"error": "transcript archive is not configured"})
		return
	}
	t, err := h.transcripts.GetTranscript(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, t)
}

// HandleNext 记录上一题的回答并返回下一题，达到上限时返回结束语
func (h *InterviewHandler) HandleNext(ctx context.Context, c *app.RequestContext) {
	var req NextRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		badRequest(c, "session_id is required")
		return
	}
	res, err := h.controller.Advance(ctx, req.SessionID, req.LastAnswer)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// HandleScore 单一总分评估
func (h *InterviewHandler) HandleScore(ctx context.Context, c *app.RequestContext) {
	req, ok := bindScore(c)
	if !ok {
		return
	}
	res, err := h.evaluator.ScoreSimple(ctx, req.SessionID, req.Question, req.Answer, req.RunningTotal)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// HandleScoreDetailed 五维度评估
func (h *InterviewHandler) HandleScoreDetailed(ctx context.Context, c *app.RequestContext) {
	req, ok := bindScore(c)
	if !ok {
		return
	}
	res, err := h.evaluator.ScoreDetailed(ctx, req.SessionID, req.Question, req.Answer)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// HandleSummary 生成面试总结
func (h *InterviewHandler) HandleSummary(ctx context.Context, c *app.RequestContext) {
	var req SummaryRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	var (
		summary *types.InterviewSummary
		err     error
	)
	if req.SessionID != "" {
		summary, err = h.analyzer.Summarize(ctx, req.SessionID)
	} else {
		summary, err = h.analyzer.SummarizeTranscript(ctx, req.ResumeText, req.Score, req.Conversation)
	}
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, summary)
}

// HandleGenerate 旧接口：一次性生成 5 个问题
func (h *InterviewHandler) HandleGenerate(ctx context.Context, c *app.RequestContext) {
	var req ProfileRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	questions, err := h.analyzer.GenerateQuestions(ctx, req.ResumeText)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"questions": questions})
}

func bindScore(c *app.RequestContext) (ScoreRequest, bool) {
	var req ScoreRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return req, false
	}
	if req.SessionID == "" {
		badRequest(c, "session_id is required")
		return req, false
	}
	return req, true
}
