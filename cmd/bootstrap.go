package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"

	"ai-interviewer/internal/api/handler"
	"ai-interviewer/internal/config"
	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/feeds"
	"ai-interviewer/internal/gateway"
	"ai-interviewer/internal/interview"
	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/matching"
	"ai-interviewer/internal/parser"
	"ai-interviewer/internal/session"
	"ai-interviewer/internal/storage"
	"ai-interviewer/pkg/agent"
	"ai-interviewer/pkg/ratelimit"
)

var (
	_ handler.ResumeArchive    = (*storage.MinIO)(nil)
	_ handler.TranscriptReader = (*storage.MinIO)(nil)
	_ handler.ResumeRepository = (*storage.MySQL)(nil)
	_ handler.TextExtractor    = (*parser.EinoPDFTextExtractor)(nil)
	_ feeds.Ingester           = (*matching.Engine)(nil)
)

// services 组装好的业务组件，serve / ingest / chat 共用
type services struct {
	cfg        *config.Config
	storage    *storage.Storage
	store      *session.Store
	controller *interview.Controller
	evaluator  *interview.Evaluator
	analyzer   *interview.Analyzer
	engine     *matching.Engine
	feeds      *feeds.Service
	extractor  *parser.EinoPDFTextExtractor
	logger     zerolog.Logger
}

// bootstrap 按配置初始化存储和业务组件。
// 未配置 MySQL 时会话和岗位保存在内存中，未配置外部索引时使用内存索引。
func bootstrap(ctx context.Context, cfg *config.Config) (*services, error) {
	log := logger.Named("bootstrap")
	st, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}
	svc := &services{cfg: cfg, storage: st, logger: log}

	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	// 会话存储
	var sessionRepo session.Repository = session.NewMemoryRepository()
	if st.MySQL != nil {
		sessionRepo = st.MySQL
	}
	storeOpts := []session.StoreOption{}
	if cfg.Interview.DistributedLock {
		if st.Redis == nil {
			log.Warn().Msg("distributed session lock requested but Redis is unavailable, using in-process locks only")
		} else {
			storeOpts = append(storeOpts, session.WithDistributedLock(st.Redis, config.GetDuration(cfg.Interview.LockTTL, 2*time.Minute)))
		}
	}
	svc.store = session.NewStore(sessionRepo, storeOpts...)

	// 面试流程
	ctrlOpts := []interview.ControllerOption{
		interview.WithMaxQuestions(cfg.Interview.MaxQuestions),
		interview.WithRegenerateLimit(cfg.Interview.RegenerateLimit),
		interview.WithHistoryWindow(cfg.Interview.HistoryWindow),
	}
	if cfg.Interview.ClosingMessage != "" {
		ctrlOpts = append(ctrlOpts, interview.WithClosingMessage(cfg.Interview.ClosingMessage))
	}
	if cfg.Interview.ArchiveOnFinish && st.MinIO != nil {
		ctrlOpts = append(ctrlOpts, interview.WithCompletionHook(interview.ArchiveHook(st.MinIO, cfg.Interview.MaxQuestions)))
	}
	svc.controller = interview.NewController(gen, svc.store, ctrlOpts...)
	svc.evaluator = interview.NewEvaluator(gen, svc.store)
	svc.analyzer = interview.NewAnalyzer(gen, svc.store)

	// 岗位匹配
	embedder, err := newEmbedder(ctx, cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	index := st.Index()
	if index == nil {
		index = matching.NewMemoryIndex()
	}
	resumeIndex := st.ResumeIndex()
	if resumeIndex == nil {
		resumeIndex = matching.NewMemoryIndex()
	}
	var (
		jobs    matching.JobRepository   = matching.NewMemoryJobRepository()
		matches matching.MatchRepository = matching.NewMemoryMatchRepository()
	)
	if st.MySQL != nil {
		jobs, matches = st.MySQL, st.MySQL
	}
	svc.engine = matching.NewEngine(embedder, index, jobs, matches,
		matching.WithProfileSource(svc.store),
		matching.WithResumeIndex(resumeIndex),
		matching.WithMaxTopK(cfg.Matching.MaxTopK),
	)

	// 岗位源
	feedTimeout := config.GetDuration(cfg.Feeds.Timeout, 20*time.Second)
	var fetchers []feeds.Fetcher
	for _, src := range cfg.Feeds.Sources {
		switch src {
		case constants.SourceRemoteOK:
			fetchers = append(fetchers, feeds.NewRemoteOK(cfg.Feeds.RemoteOKURL, feedTimeout))
		case constants.SourceMuse:
			fetchers = append(fetchers, feeds.NewMuse(cfg.Feeds.MuseURL, feedTimeout))
		}
	}
	var feedOpts []feeds.ServiceOption
	if st.RabbitMQ != nil {
		feedOpts = append(feedOpts, feeds.WithPublisher(st.RabbitMQ, cfg.RabbitMQ.JobIngestExchange, cfg.RabbitMQ.JobIngestRoutingKey))
	}
	svc.feeds = feeds.NewService(svc.engine, fetchers, feedOpts...)

	svc.extractor, err = parser.NewEinoPDFTextExtractor(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("创建PDF提取器失败: %w", err)
	}

	log.Info().
		Str("llm", cfg.LLM.Provider).
		Str("embedding", cfg.Embedding.Provider).
		Str("index", cfg.Matching.Index).
		Bool("mysql", st.MySQL != nil).
		Bool("redis", st.Redis != nil).
		Bool("rabbitmq", st.RabbitMQ != nil).
		Bool("minio", st.MinIO != nil).
		Msg("services initialized")
	return svc, nil
}

// newGenerator 创建聊天模型，按配置限流后包装为 Generation Gateway
func newGenerator(ctx context.Context, cfg *config.Config) (*gateway.Gateway, error) {
	chatModel, err := agent.NewChatModel(ctx, agent.ChatModelConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		APIURL:   cfg.LLM.APIURL,
		Model:    cfg.LLM.Model,
		Timeout:  config.GetDuration(cfg.LLM.RequestTimeout, 60*time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("初始化LLM客户端失败: %w", err)
	}
	limited := ratelimit.WrapChatModel(chatModel, cfg.QPMForModel(cfg.LLM.Model, cfg.LLM.QPM))
	return gateway.New(limited,
		gateway.WithMaxAttempts(cfg.Gateway.MaxAttempts),
		gateway.WithRetryDelay(config.GetDuration(cfg.Gateway.RetryDelay, 2*time.Second)),
	), nil
}

// newEmbedder 创建 Embedder 并加上 LRU 缓存；Redis 可用时作为二级缓存
func newEmbedder(ctx context.Context, cfg *config.Config, st *storage.Storage) (embedding.Embedder, error) {
	var (
		base embedding.Embedder
		err  error
	)
	switch cfg.Embedding.Provider {
	case "openai":
		base, err = parser.NewOpenAIEmbedder(cfg.Embedding)
	default:
		base, err = parser.NewGeminiEmbedder(ctx, cfg.Embedding)
	}
	if err != nil {
		return nil, fmt.Errorf("初始化Embedder失败: %w", err)
	}
	base = ratelimit.WrapEmbedder(base, cfg.QPMForModel(cfg.Embedding.Model, cfg.Embedding.QPM))

	var opts []parser.CacheOption
	if st.Redis != nil {
		opts = append(opts, parser.WithRemoteCache(st.Redis, config.GetDuration(cfg.Embedding.RedisCacheTTL, 24*time.Hour)))
	}
	return parser.WrapWithCache(base, cfg.Embedding.Model, cfg.Embedding.CacheSize,
		config.GetDuration(cfg.Embedding.CacheTTL, 30*time.Minute), opts...), nil
}

// resumeHandler 按可用的存储组件组装简历上传处理器
func (s *services) resumeHandler() *handler.ResumeHandler {
	var (
		archive handler.ResumeArchive
		repo    handler.ResumeRepository
	)
	if s.storage.MinIO != nil {
		archive = s.storage.MinIO
	}
	if s.storage.MySQL != nil {
		repo = s.storage.MySQL
	}
	return handler.NewResumeHandler(s.extractor, archive, repo, handler.WithResumeIndexer(s.engine))
}

// interviewOptions MinIO 可用时开放归档记录查询
func (s *services) interviewOptions() []handler.InterviewOption {
	if s.storage.MinIO == nil {
		return nil
	}
	return []handler.InterviewOption{handler.WithTranscripts(s.storage.MinIO)}
}

// Close 释放存储连接
func (s *services) Close() {
	s.storage.Close()
}
