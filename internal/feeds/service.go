package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/types"
)

// Ingester 把岗位写入存储和索引，由 matching.Engine 实现
type Ingester interface {
	Ingest(ctx context.Context, inputs []types.JobInput) (*types.IngestReport, error)
}

// Publisher 消息发布
type Publisher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
}

// IngestMessage jobs.ingest 队列中的一批岗位
type IngestMessage struct {
	BatchID   string           `json:"batch_id"`
	Source    string           `json:"source"`
	Page      int              `json:"page"`
	Jobs      []types.JobInput `json:"jobs"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// Service 抓取岗位源并入库。配置了 Publisher 时 Dispatch 经消息队列异步入库
type Service struct {
	fetchers   map[string]Fetcher
	ingester   Ingester
	publisher  Publisher
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

// ServiceOption 配置 Service
type ServiceOption func(*Service)

// WithPublisher 通过消息队列异步入库
func WithPublisher(p Publisher, exchange, routingKey string) ServiceOption {
	return func(s *Service) {
		s.publisher = p
		s.exchange = exchange
		s.routingKey = routingKey
	}
}

// WithServiceLogger 设置日志记录器
func WithServiceLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService 创建抓取服务
func NewService(ingester Ingester, fetchers []Fetcher, opts ...ServiceOption) *Service {
	s := &Service{
		fetchers: make(map[string]Fetcher, len(fetchers)),
		ingester: ingester,
		logger:   logger.Named("feeds"),
	}
	for _, f := range fetchers {
		s.fetchers[f.Source()] = f
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sources 已注册的岗位源名称
func (s *Service) Sources() []string {
	out := make([]string, 0, len(s.fetchers))
	for name := range s.fetchers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run 抓取并同步入库
func (s *Service) Run(ctx context.Context, source string, page int) (*types.IngestReport, error) {
	jobs, err := s.fetch(ctx, source, page)
	if err != nil {
		return nil, err
	}
	return s.ingester.Ingest(ctx, jobs)
}

// Dispatch 抓取后发布到队列；没有配置队列时同步入库
func (s *Service) Dispatch(ctx context.Context, source string, page int) error {
	if s.publisher == nil {
		_, err := s.Run(ctx, source, page)
		return err
	}
	jobs, err := s.fetch(ctx, source, page)
	if err != nil {
		return err
	}
	msg := IngestMessage{
		BatchID:   uuid.NewString(),
		Source:    source,
		Page:      page,
		Jobs:      jobs,
		FetchedAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishJSON(ctx, s.exchange, s.routingKey, msg, true); err != nil {
		return fmt.Errorf("发布岗位批次失败: %w", err)
	}
	s.logger.Info().Str("batch_id", msg.BatchID).Str("source", source).Int("jobs", len(jobs)).Msg("job batch published")
	return nil
}

// HandleMessage 消费 jobs.ingest 队列，返回 true 表示确认消息。
// 格式错误的消息直接确认丢弃，入库失败时拒绝并由队列决定是否重投。
func (s *Service) HandleMessage(body []byte) bool {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		s.logger.Error().Err(err).Msg("malformed job batch message, dropped")
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := s.ingester.Ingest(ctx, msg.Jobs)
	if err != nil {
		s.logger.Error().Err(err).Str("batch_id", msg.BatchID).Msg("job batch ingestion failed")
		return false
	}
	s.logger.Info().
		Str("batch_id", msg.BatchID).
		Int("indexed", len(report.Jobs)).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Msg("job batch ingested")
	return true
}

func (s *Service) fetch(ctx context.Context, source string, page int) ([]types.JobInput, error) {
	f, ok := s.fetchers[source]
	if !ok {
		return nil, types.NewInvalidInputError("fetch_feed", "unknown job source "+source)
	}
	start := time.Now()
	jobs, err := f.Fetch(ctx, page)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("source", source).
		Int("page", page).
		Int("jobs", len(jobs)).
		Dur("elapsed", time.Since(start)).
		Msg("feed fetched")
	return jobs, nil
}
