package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"ai-interviewer/internal/types"
)

// statusFor 把错误分类映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		return consts.StatusNotFound
	case errors.Is(err, types.ErrNoProfileText), errors.Is(err, types.ErrInvalidInput):
		return consts.StatusBadRequest
	case errors.Is(err, types.ErrDuplicateQuestionUnresolved):
		return consts.StatusConflict
	case errors.Is(err, types.ErrGenerationFailure), errors.Is(err, types.ErrEmbeddingFailure):
		return consts.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout
	default:
		return consts.StatusInternalServerError
	}
}

// writeError 统一的错误响应 {"error": "..."}
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := statusFor(err)
	if status >= consts.StatusInternalServerError {
		hlog.CtxErrorf(ctx, "%s %s failed: %v", c.Method(), c.Path(), err)
	}
	c.JSON(status, utils.H{"error": err.Error()})
}

// badRequest 请求体校验失败
func badRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, utils.H{"error": msg})
}
