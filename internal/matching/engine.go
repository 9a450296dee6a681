package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/parser"
	"ai-interviewer/internal/tracing"
	"ai-interviewer/internal/types"
)

const (
	// DefaultTopK 未指定 TopK 时返回的岗位数
	DefaultTopK = 5
	// ingestBatchSize 每次向量化请求的描述数量
	ingestBatchSize = 16
)

var matchingTracer = otel.Tracer("ai-interviewer/matching")

// ProfileSource 读取会话中的候选人资料
type ProfileSource interface {
	Get(ctx context.Context, sessionID string) (*types.Session, error)
}

// MatchRequest 匹配请求，Text 优先于 SessionID 对应的资料
type MatchRequest struct {
	SessionID string
	Text      string
	TopK      int
}

// Engine 匹配引擎
type Engine struct {
	embedder embedding.Embedder
	index    Index
	resumes  Index
	jobs     JobRepository
	matches  MatchRepository
	profiles ProfileSource
	maxTopK  int
	logger   zerolog.Logger
}

// EngineOption 配置 Engine
type EngineOption func(*Engine)

// WithProfileSource 允许按会话 id 匹配
func WithProfileSource(p ProfileSource) EngineOption {
	return func(e *Engine) {
		e.profiles = p
	}
}

// WithResumeIndex 上传的简历向量写入独立的索引
func WithResumeIndex(idx Index) EngineOption {
	return func(e *Engine) {
		e.resumes = idx
	}
}

// WithMaxTopK 限制单次查询的最大结果数
func WithMaxTopK(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTopK = n
		}
	}
}

// WithEngineLogger 设置日志记录器
func WithEngineLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine 创建匹配引擎
func NewEngine(embedder embedding.Embedder, index Index, jobs JobRepository, matches MatchRepository, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder: embedder,
		index:    index,
		jobs:     jobs,
		matches:  matches,
		maxTopK:  50,
		logger:   logger.Named("matching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match 为候选人资料检索最相近的岗位，并为每个结果写一条匹配记录。
// 索引中存在但岗位已删除的结果被丢弃。
// 匹配记录写入失败时结果照常返回，错误放在 Warning 中。
func (e *Engine) Match(ctx context.Context, req MatchRequest) (*types.MatchResult, error) {
	ctx, span := matchingTracer.Start(ctx, "Engine.Match")
	defer span.End()

	text, err := e.resolveText(ctx, req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > e.maxTopK {
		topK = e.maxTopK
	}
	span.SetAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.Int("match.top_k", topK),
		attribute.String("match.text", tracing.SafeProfileText(text)),
	)

	vector, err := e.embedOne(ctx, text)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}

	docs, err := e.index.Query(ctx, vector, topK)
	if err != nil {
		err = types.NewPersistenceError("index_query", req.SessionID, err)
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.DocID
	}
	jobs, err := e.jobs.GetJobs(ctx, ids)
	if err != nil {
		err = types.NewPersistenceError("load_jobs", req.SessionID, err)
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}

	result := &types.MatchResult{SessionID: req.SessionID, Matches: make([]types.JobMatch, 0, len(docs))}
	now := time.Now().UTC()
	records := make([]types.MatchRecord, 0, len(docs))
	for _, d := range docs {
		job, ok := jobs[d.DocID]
		if !ok {
			e.logger.Debug().Str("doc_id", d.DocID).Msg("indexed job no longer exists, dropped")
			continue
		}
		result.Matches = append(result.Matches, types.JobMatch{Job: job, Similarity: d.Similarity})
		records = append(records, types.MatchRecord{
			SessionID:  req.SessionID,
			JobID:      job.ID,
			Similarity: d.Similarity,
			CreatedAt:  now,
		})
	}
	span.SetAttributes(attribute.Int("match.results", len(result.Matches)), attribute.Int("match.dropped", len(docs)-len(result.Matches)))

	if len(records) > 0 {
		if err := e.matches.SaveMatches(ctx, records); err != nil {
			result.Warning = types.NewPersistenceError("save_matches", req.SessionID, err)
			tracing.RecordError(span, result.Warning, tracing.ErrorTypeDB)
			e.logger.Error().Err(err).Str("session_id", req.SessionID).Int("records", len(records)).Msg("persist match records failed")
		}
	}
	return result, nil
}

// Ingest 写入或更新岗位并索引其描述。没有描述的岗位跳过，单个岗位的失败记录在报告中。
func (e *Engine) Ingest(ctx context.Context, inputs []types.JobInput) (*types.IngestReport, error) {
	ctx, span := matchingTracer.Start(ctx, "Engine.Ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("ingest.inputs", len(inputs)))

	report := &types.IngestReport{Jobs: []types.JobRecord{}}
	pending := make([]types.JobRecord, 0, len(inputs))
	for _, in := range inputs {
		in.Description = strings.TrimSpace(in.Description)
		in.Title = strings.TrimSpace(in.Title)
		if in.Description == "" {
			report.Skipped++
			continue
		}
		rec, err := e.jobs.UpsertJob(ctx, in)
		if err != nil {
			report.Failed = append(report.Failed, ingestFailure(in, err))
			continue
		}
		pending = append(pending, *rec)
	}

	for start := 0; start < len(pending); start += ingestBatchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+ingestBatchSize, len(pending))
		batch := pending[start:end]
		e.indexBatch(ctx, batch, report)
	}

	span.SetAttributes(
		attribute.Int("ingest.indexed", len(report.Jobs)),
		attribute.Int("ingest.skipped", report.Skipped),
		attribute.Int("ingest.failed", len(report.Failed)),
	)
	e.logger.Info().
		Int("indexed", len(report.Jobs)).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Msg("jobs ingested")
	return report, nil
}

func (e *Engine) indexBatch(ctx context.Context, batch []types.JobRecord, report *types.IngestReport) {
	texts := make([]string, len(batch))
	for i, j := range batch {
		texts[i] = j.Description
	}
	vectors, err := e.embedder.EmbedStrings(ctx, texts)
	if err == nil && len(vectors) != len(batch) {
		err = errEmbeddingCount(len(batch), len(vectors))
	}
	if err != nil {
		err = types.NewEmbeddingError("ingest", err)
		for _, j := range batch {
			report.Failed = append(report.Failed, ingestFailureFromRecord(j, err))
		}
		return
	}

	for i, j := range batch {
		meta := map[string]any{
			"job_id":  j.ID,
			"title":   j.Title,
			"company": j.Company,
			"source":  j.Source,
		}
		if err := e.index.Upsert(ctx, j.ID, parser.Float64To32(vectors[i]), meta); err != nil {
			report.Failed = append(report.Failed, ingestFailureFromRecord(j, err))
			continue
		}
		report.Jobs = append(report.Jobs, j)
	}
}

// IndexResume 向量化简历正文并写入简历索引，未配置简历索引时返回 false
func (e *Engine) IndexResume(ctx context.Context, r *types.Resume) (bool, error) {
	if e.resumes == nil {
		return false, nil
	}
	text := strings.TrimSpace(r.TextContent)
	if text == "" {
		return false, types.NewNoProfileTextError("index_resume", "")
	}
	ctx, span := matchingTracer.Start(ctx, "Engine.IndexResume")
	defer span.End()
	span.SetAttributes(attribute.String("resume.id", r.ID))

	vectors, err := e.embedder.EmbedStrings(ctx, []string{text})
	if err == nil && (len(vectors) != 1 || len(vectors[0]) == 0) {
		err = errEmbeddingCount(1, len(vectors))
	}
	if err != nil {
		err = types.NewEmbeddingError("index_resume", err)
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return false, err
	}
	meta := map[string]any{
		"resume_id":  r.ID,
		"filename":   r.Filename,
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := e.resumes.Upsert(ctx, r.ID, parser.Float64To32(vectors[0]), meta); err != nil {
		return false, fmt.Errorf("写入简历向量失败: %w", err)
	}
	e.logger.Info().Str("resume_id", r.ID).Msg("resume indexed")
	return true, nil
}

func (e *Engine) resolveText(ctx context.Context, req MatchRequest) (string, error) {
	if text := strings.TrimSpace(req.Text); text != "" {
		return text, nil
	}
	if req.SessionID != "" && e.profiles != nil {
		sess, err := e.profiles.Get(ctx, req.SessionID)
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(sess.ProfileText); text != "" {
			return text, nil
		}
	}
	return "", types.NewNoProfileTextError("match", req.SessionID)
}

func (e *Engine) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, types.NewEmbeddingError("match", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, types.NewEmbeddingError("match", errEmbeddingCount(1, len(vectors)))
	}
	return parser.Float64To32(vectors[0]), nil
}

func ingestFailure(in types.JobInput, err error) types.IngestFailure {
	return types.IngestFailure{Source: in.Source, ExternalID: in.ExternalID, Title: in.Title, Reason: err.Error()}
}

func ingestFailureFromRecord(j types.JobRecord, err error) types.IngestFailure {
	return types.IngestFailure{Source: j.Source, ExternalID: j.ExternalID, Title: j.Title, Reason: err.Error()}
}

func errEmbeddingCount(want, got int) error {
	return fmt.Errorf("embedder returned %d vector(s) for %d text(s)", got, want)
}
