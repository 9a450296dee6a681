package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"

	"ai-interviewer/internal/types"
)

const (
	// MaxResumeSize 上传简历的大小上限
	MaxResumeSize = 10 << 20
	// downloadURLExpiry 上传响应中下载地址的有效期
	downloadURLExpiry = 15 * time.Minute
)

// TextExtractor 从上传文件中提取纯文本
type TextExtractor interface {
	ExtractText(ctx context.Context, filename string, data []byte) (string, error)
}

// ResumeArchive 保存简历原件，返回对象键和 MD5
type ResumeArchive interface {
	UploadResume(ctx context.Context, resumeID, fileExt string, reader io.Reader, fileSize int64) (string, string, error)
	ResumeDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// ResumeRepository 持久化简历记录
type ResumeRepository interface {
	SaveResume(ctx context.Context, r *types.Resume, metadata map[string]any) error
}

// ResumeIndexer 把简历写入向量索引，返回是否已写入
type ResumeIndexer interface {
	IndexResume(ctx context.Context, r *types.Resume) (bool, error)
}

// ResumeUploadResponse 简历上传响应
type ResumeUploadResponse struct {
	*types.Resume
	DownloadURL string `json:"download_url,omitempty"`
	Indexed     bool   `json:"indexed"`
}

// ResumeHandler 简历上传
type ResumeHandler struct {
	extractor TextExtractor
	archive   ResumeArchive
	repo      ResumeRepository
	indexer   ResumeIndexer
}

// ResumeOption 配置 ResumeHandler
type ResumeOption func(*ResumeHandler)

// WithResumeIndexer 上传成功后把简历写入向量索引
func WithResumeIndexer(ix ResumeIndexer) ResumeOption {
	return func(h *ResumeHandler) {
		h.indexer = ix
	}
}

// NewResumeHandler 创建简历处理器；archive 和 repo 可以为 nil
func NewResumeHandler(extractor TextExtractor, archive ResumeArchive, repo ResumeRepository, opts ...ResumeOption) *ResumeHandler {
	h := &ResumeHandler{extractor: extractor, archive: archive, repo: repo}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleUpload 处理 multipart 上传，表单字段 file。
// 只接受 .pdf、.docx 和 .txt，提取文本后归档原件、写入简历记录并建立向量索引。
// 索引失败不影响上传结果，响应中 indexed 为 false。
func (h *ResumeHandler) HandleUpload(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file not found in form field \"file\"")
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	switch ext {
	case ".pdf", ".docx", ".txt":
	default:
		badRequest(c, "only PDF, DOCX or TXT files are allowed")
		return
	}
	if fileHeader.Size > MaxResumeSize {
		badRequest(c, fmt.Sprintf("file exceeds %d bytes", MaxResumeSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		writeError(ctx, c, fmt.Errorf("打开上传文件失败: %w", err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(ctx, c, fmt.Errorf("读取上传文件失败: %w", err))
		return
	}

	text, err := h.extractor.ExtractText(ctx, fileHeader.Filename, data)
	if err != nil {
		writeError(ctx, c, err)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		writeError(ctx, c, fmt.Errorf("生成简历ID失败: %w", err))
		return
	}
	resume := &types.Resume{
		ID:          id.String(),
		Filename:    fileHeader.Filename,
		TextContent: text,
		CreatedAt:   time.Now().UTC(),
	}
	metadata := map[string]any{
		"size":  len(data),
		"chars": len([]rune(text)),
	}

	if h.archive != nil {
		key, md5Hex, err := h.archive.UploadResume(ctx, resume.ID, ext, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			writeError(ctx, c, types.NewPersistenceError("archive_resume", "", err))
			return
		}
		resume.ObjectKey = key
		metadata["md5"] = md5Hex
	}
	if h.repo != nil {
		if err := h.repo.SaveResume(ctx, resume, metadata); err != nil {
			writeError(ctx, c, types.NewPersistenceError("save_resume", "", err))
			return
		}
	}

	resp := ResumeUploadResponse{Resume: resume}
	if h.archive != nil {
		if u, err := h.archive.ResumeDownloadURL(ctx, resume.ObjectKey, downloadURLExpiry); err != nil {
			hlog.CtxWarnf(ctx, "presign resume %s failed: %v", resume.ID, err)
		} else {
			resp.DownloadURL = u
		}
	}
	if h.indexer != nil {
		indexed, err := h.indexer.IndexResume(ctx, resume)
		if err != nil {
			hlog.CtxWarnf(ctx, "index resume %s failed: %v", resume.ID, err)
		}
		resp.Indexed = indexed
	}
	hlog.CtxInfof(ctx, "resume %s uploaded: %s (%d bytes, %d chars)", resume.ID, resume.Filename, len(data), metadata["chars"])
	c.JSON(consts.StatusCreated, resp)
}
