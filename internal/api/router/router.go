package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"ai-interviewer/internal/api/handler"
	"ai-interviewer/internal/constants"
)

// Handlers 路由需要的全部处理器，Resume 为 nil 时不注册上传接口
type Handlers struct {
	Interview *handler.InterviewHandler
	Jobs      *handler.JobHandler
	Resume    *handler.ResumeHandler
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, hs Handlers) {
	api := h.Group("/api/v1")

	// 添加健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	iv := api.Group("/interview")
	iv.POST("/analyze", hs.Interview.HandleAnalyze)
	iv.POST("/sessions", hs.Interview.HandleCreateSession)
	iv.GET("/sessions/:id", hs.Interview.HandleGetSession)
	iv.GET("/sessions/:id/transcript", hs.Interview.HandleGetTranscript)
	iv.POST("/next", hs.Interview.HandleNext)
	iv.POST("/score", hs.Interview.HandleScore)
	iv.POST("/score/detailed", hs.Interview.HandleScoreDetailed)
	iv.POST("/summary", hs.Interview.HandleSummary)
	iv.POST("/generate", hs.Interview.HandleGenerate)

	jobs := api.Group("/jobs")
	jobs.POST("/ingest", hs.Jobs.HandleIngest)
	jobs.POST("/match", hs.Jobs.HandleMatch)
	jobs.GET("/remoteok", hs.Jobs.FeedHandler(constants.SourceRemoteOK))
	jobs.GET("/muse", hs.Jobs.FeedHandler(constants.SourceMuse))

	if hs.Resume != nil {
		api.POST("/resume/upload", hs.Resume.HandleUpload)
	}
}
