package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"

	"ai-interviewer/internal/config"
	"ai-interviewer/internal/interview"
	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/types"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	UploadFile(ctx context.Context, bucket, objectName string, reader io.Reader, fileSize int64, contentType string) (string, error)
	DownloadFile(ctx context.Context, bucket, objectName string) ([]byte, error)
	GetPresignedURL(ctx context.Context, bucket, objectName string, expiry time.Duration) (string, error)
	ArchiveTranscript(ctx context.Context, t *types.Transcript) (string, error)
	UploadResume(ctx context.Context, resumeID, fileExt string, reader io.Reader, fileSize int64) (string, string, error)
	ResumeDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

var (
	_ ObjectStorage                = (*MinIO)(nil)
	_ interview.TranscriptArchiver = (*MinIO)(nil)
)

// MinIO 提供对象存储功能：面试记录归档和简历原件
type MinIO struct {
	client            *minio.Client
	cfg               *config.MinIOConfig
	transcriptsBucket string
	resumesBucket     string
	logger            zerolog.Logger
}

// NewMinIO 创建MinIO客户端并确保存储桶存在
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:            client,
		cfg:               cfg,
		transcriptsBucket: cfg.TranscriptsBucket,
		resumesBucket:     cfg.ResumesBucket,
		logger:            logger.Named("minio"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, bucket := range []string{m.transcriptsBucket, m.resumesBucket} {
		if err := m.ensureBucketExists(ctx, bucket, cfg.Location); err != nil {
			return nil, err
		}
	}
	if err := m.setupLifecycleRules(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to set up lifecycle rules")
	}

	m.logger.Info().Str("endpoint", cfg.Endpoint).Msg("MinIO client initialized")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	m.logger.Info().Str("bucket", bucketName).Msg("bucket created")
	return nil
}

// setupLifecycleRules 设置对象生命周期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.TranscriptExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.transcriptsBucket, "expire-transcripts", m.cfg.TranscriptExpireDays); err != nil {
			return fmt.Errorf("为存储桶 %s 设置生命周期失败: %w", m.transcriptsBucket, err)
		}
	}
	if m.cfg.ResumeExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.resumesBucket, "expire-resumes", m.cfg.ResumeExpireDays); err != nil {
			return fmt.Errorf("为存储桶 %s 设置生命周期失败: %w", m.resumesBucket, err)
		}
	}
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, cfg)
}

// UploadFile 上传对象，返回对象键
func (m *MinIO) UploadFile(ctx context.Context, bucket, objectName string, reader io.Reader, fileSize int64, contentType string) (string, error) {
	info, err := m.client.PutObject(ctx, bucket, objectName, reader, fileSize, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", bucket, objectName, err)
	}
	m.logger.Debug().Str("bucket", bucket).Str("object", objectName).Int64("size", info.Size).Msg("object uploaded")
	return objectName, nil
}

// DownloadFile 下载对象内容
func (m *MinIO) DownloadFile(ctx context.Context, bucket, objectName string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", bucket, objectName, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 失败: %w", bucket, objectName, err)
	}
	return data, nil
}

// GetPresignedURL 获取预签名下载地址
func (m *MinIO) GetPresignedURL(ctx context.Context, bucket, objectName string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return u.String(), nil
}

// ArchiveTranscript 把完成的面试记录以 JSON 写入归档桶
func (m *MinIO) ArchiveTranscript(ctx context.Context, t *types.Transcript) (string, error) {
	if t == nil || t.Session == nil {
		return "", fmt.Errorf("面试记录为空")
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化面试记录失败: %w", err)
	}
	return m.UploadFile(ctx, m.transcriptsBucket, TranscriptObjectKey(t.Session.ID), bytes.NewReader(data), int64(len(data)), "application/json")
}

// GetTranscript 读取归档的面试记录
func (m *MinIO) GetTranscript(ctx context.Context, sessionID string) (*types.Transcript, error) {
	data, err := m.DownloadFile(ctx, m.transcriptsBucket, TranscriptObjectKey(sessionID))
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, types.NewSessionNotFoundError("get_transcript", sessionID)
		}
		return nil, err
	}
	var t types.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("解析面试记录失败: %w", err)
	}
	return &t, nil
}

// UploadResume 流式上传简历原件并同时计算MD5，返回对象键和MD5
func (m *MinIO) UploadResume(ctx context.Context, resumeID, fileExt string, reader io.Reader, fileSize int64) (string, string, error) {
	objectName := ResumeObjectKey(resumeID, fileExt)
	md5Hash := md5.New()
	if _, err := m.UploadFile(ctx, m.resumesBucket, objectName, io.TeeReader(reader, md5Hash), fileSize, getContentType(fileExt)); err != nil {
		return "", "", err
	}
	return objectName, hex.EncodeToString(md5Hash.Sum(nil)), nil
}

// ResumeDownloadURL 简历原件的临时下载地址
func (m *MinIO) ResumeDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	return m.GetPresignedURL(ctx, m.resumesBucket, objectKey, expiry)
}

// TranscriptObjectKey 面试记录的对象键
func TranscriptObjectKey(sessionID string) string {
	return fmt.Sprintf("transcripts/%s.json", sessionID)
}

// ResumeObjectKey 简历原件的对象键，例如 resume/<id>/original.pdf
func ResumeObjectKey(resumeID, fileExt string) string {
	return fmt.Sprintf("resume/%s/original%s", resumeID, strings.ToLower(fileExt))
}

func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
