package handler

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/matching"
	"ai-interviewer/internal/types"
)

// JobMatcher 岗位入库与匹配
type JobMatcher interface {
	Ingest(ctx context.Context, inputs []types.JobInput) (*types.IngestReport, error)
	Match(ctx context.Context, req matching.MatchRequest) (*types.MatchResult, error)
}

// FeedRunner 抓取外部岗位源并入库
type FeedRunner interface {
	Run(ctx context.Context, source string, page int) (*types.IngestReport, error)
}

// JobHandler 岗位相关接口
type JobHandler struct {
	matcher     JobMatcher
	feeds       FeedRunner
	defaultTopK int
}

// NewJobHandler 创建岗位处理器；feeds 为 nil 时岗位源接口返回 503
func NewJobHandler(matcher JobMatcher, feeds FeedRunner, defaultTopK int) *JobHandler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &JobHandler{matcher: matcher, feeds: feeds, defaultTopK: defaultTopK}
}

// MatchRequest 匹配请求，session_id 与 resume_text 二选一，resume_text 优先
type MatchRequest struct {
	SessionID  string `json:"session_id"`
	ResumeText string `json:"resume_text"`
	TopK       *int   `json:"top_k"`
}

// MatchItem 匹配结果，相似度为百分比
type MatchItem struct {
	JobID      string  `json:"job_id"`
	Title      string  `json:"title"`
	Company    *string `json:"company"`
	Similarity float64 `json:"similarity"`
	URL        *string `json:"url"`
	Reason     *string `json:"reason"`
}

// HandleIngest 批量写入岗位
func (h *JobHandler) HandleIngest(ctx context.Context, c *app.RequestContext) {
	var inputs []types.JobInput
	if err := c.BindJSON(&inputs); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	for i := range inputs {
		if strings.TrimSpace(inputs[i].Source) == "" {
			inputs[i].Source = constants.SourceManual
		}
	}
	report, err := h.matcher.Ingest(ctx, inputs)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, report)
}

// FeedHandler 返回抓取指定岗位源的处理函数，page 取自查询参数
func (h *JobHandler) FeedHandler(source string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if h.feeds == nil {
			c.JSON(consts.StatusServiceUnavailable, utils.H{"error": "job feeds are not configured"})
			return
		}
		page := 1
		if raw := c.Query("page"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				badRequest(c, "page must be a positive integer")
				return
			}
			page = n
		}
		report, err := h.feeds.Run(ctx, source, page)
		if err != nil {
			writeError(ctx, c, err)
			return
		}
		c.JSON(consts.StatusOK, report)
	}
}

// HandleMatch 返回与简历最相近的岗位。
// 匹配记录写入失败时仍返回 200，原因放在 Warning 响应头中。
func (h *JobHandler) HandleMatch(ctx context.Context, c *app.RequestContext) {
	var req MatchRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	topK := h.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	res, err := h.matcher.Match(ctx, matching.MatchRequest{
		SessionID: req.SessionID,
		Text:      req.ResumeText,
		TopK:      topK,
	})
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if res.Warning != nil {
		hlog.CtxWarnf(ctx, "match records not persisted: %v", res.Warning)
		c.Response.Header.Set("Warning", `199 - "match records not persisted"`)
	}

	items := make([]MatchItem, 0, len(res.Matches))
	for _, m := range res.Matches {
		items = append(items, MatchItem{
			JobID:      m.Job.ID,
			Title:      m.Job.Title,
			Company:    optional(m.Job.Company),
			Similarity: percent(m.Similarity),
			URL:        optional(m.Job.URL),
		})
	}
	c.JSON(consts.StatusOK, items)
}

// percent 把 [0,1] 的相似度换算为保留两位小数的百分比
func percent(sim float64) float64 {
	return math.Round(sim*10000) / 100
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
