package feeds

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ai-interviewer/internal/constants"
)

// RunLocker 多副本部署时保证同一时刻只有一个副本在抓取
type RunLocker interface {
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}

// SchedulerOption 配置 Scheduler
type SchedulerOption func(*Scheduler)

// WithRunLock 每次执行前获取分布式锁，拿不到锁则跳过
func WithRunLock(l RunLocker, ttl time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.locker = l
		s.lockTTL = ttl
	}
}

// Scheduler 按 cron 表达式定时抓取所有配置的岗位源，上一次未结束时跳过本次
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	sources []string
	pages   int
	ctx     context.Context
	cancel  context.CancelFunc
	locker  RunLocker
	lockTTL time.Duration
	logger  zerolog.Logger
}

// NewScheduler 创建调度器，spec 为标准5段 cron 表达式
func NewScheduler(service *Service, spec string, sources []string, pages int, opts ...SchedulerOption) (*Scheduler, error) {
	l := service.logger.With().Str("spec", spec).Logger()
	cronLogger := cron.PrintfLogger(&l)
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		service: service,
		sources: sources,
		pages:   max(pages, 1),
		lockTTL: 30 * time.Minute,
		logger:  l,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Start 启动调度，ctx 结束后正在执行的抓取会被取消
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Info().Strs("sources", s.sources).Msg("feed scheduler started")
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("feed scheduler stopped")
}

func (s *Scheduler) runOnce() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if s.locker != nil {
		key := fmt.Sprintf(constants.KeyFeedLock, "scheduled")
		token, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
		if err != nil || token == "" {
			s.logger.Info().Err(err).Msg("another replica is running the feeds, skipped")
			return
		}
		defer func() {
			if _, err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
				s.logger.Warn().Err(err).Msg("release feed lock failed")
			}
		}()
	}

	start := time.Now()
	for _, source := range s.sources {
		for page := 1; page <= s.pages; page++ {
			if ctx.Err() != nil {
				return
			}
			if err := s.service.Dispatch(ctx, source, page); err != nil {
				s.logger.Error().Err(err).Str("source", source).Int("page", page).Msg("scheduled feed run failed")
				break
			}
			if source != constants.SourceMuse {
				break
			}
		}
	}
	s.logger.Info().Dur("elapsed", time.Since(start)).Msg("scheduled feed run finished")
}
