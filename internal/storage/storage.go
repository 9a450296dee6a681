package storage

import (
	"context"
	"fmt"
	"strings"

	"ai-interviewer/internal/config"
	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/matching"
)

// Storage 存储管理器，聚合所有已配置的外部依赖；未配置的组件为 nil
type Storage struct {
	MinIO    *MinIO
	RabbitMQ *RabbitMQ
	Qdrant   *Qdrant
	PGVector *PGVector
	MySQL    *MySQL
	Redis    *Redis

	// 简历向量与岗位向量分开存放
	resumeIndex matching.Index
	resumePG    *PGVector
}

// NewStorage 按配置初始化存储组件。
// MySQL、RabbitMQ 和向量索引失败时返回错误；MinIO 和 Redis 只是可选增强，失败时记录警告。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	log := logger.Named("storage")
	s := &Storage{}
	var err error

	if cfg.MySQL.DSN != "" || cfg.MySQL.Host != "" {
		if s.MySQL, err = NewMySQL(&cfg.MySQL); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化MySQL失败: %w", err)
		}
		s.MySQL.RouteEvent(constants.EventInterviewCompleted, cfg.RabbitMQ.InterviewExchange, cfg.RabbitMQ.CompletedRoutingKey)
		s.MySQL.RouteEvent(constants.EventMatchCreated, cfg.RabbitMQ.MatchExchange, cfg.RabbitMQ.MatchRoutingKey)
	}

	if cfg.RabbitMQ.URL != "" {
		if s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化RabbitMQ失败: %w", err)
		}
		if err := s.RabbitMQ.SetupTopology(); err != nil {
			s.Close()
			return nil, fmt.Errorf("声明RabbitMQ拓扑失败: %w", err)
		}
	}

	switch cfg.Matching.Index {
	case "qdrant":
		if s.Qdrant, err = NewQdrant(&cfg.Qdrant); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化Qdrant失败: %w", err)
		}
		resumeCfg := cfg.Qdrant
		resumeCfg.Collection = cfg.Qdrant.ResumeCollection
		resumes, err := NewQdrant(&resumeCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化Qdrant简历集合失败: %w", err)
		}
		s.resumeIndex = resumes
	case "pgvector":
		if s.PGVector, err = NewPGVector(ctx, &cfg.PGVector); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化pgvector失败: %w", err)
		}
		resumeCfg := cfg.PGVector
		resumeCfg.Table = cfg.PGVector.ResumeTable
		if s.resumePG, err = NewPGVector(ctx, &resumeCfg); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化pgvector简历表失败: %w", err)
		}
		s.resumeIndex = s.resumePG
	}

	var warnings []string
	if cfg.MinIO.Endpoint != "" {
		if s.MinIO, err = NewMinIO(&cfg.MinIO); err != nil {
			warnings = append(warnings, fmt.Sprintf("MinIO: %v", err))
		}
	}
	if cfg.Redis.Address != "" {
		if s.Redis, err = NewRedisAdapter(&cfg.Redis); err != nil {
			warnings = append(warnings, fmt.Sprintf("Redis: %v", err))
		}
	}
	if len(warnings) > 0 {
		log.Warn().Str("components", strings.Join(warnings, "; ")).Msg("optional storage components unavailable")
	}
	return s, nil
}

// Index 返回配置的向量索引，未配置外部索引时为 nil
func (s *Storage) Index() matching.Index {
	switch {
	case s.Qdrant != nil:
		return s.Qdrant
	case s.PGVector != nil:
		return s.PGVector
	}
	return nil
}

// ResumeIndex 返回简历向量索引，未配置外部索引时为 nil
func (s *Storage) ResumeIndex() matching.Index {
	return s.resumeIndex
}

// Close 关闭所有连接
func (s *Storage) Close() {
	log := logger.Named("storage")
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close RabbitMQ")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close MySQL")
		}
	}
	if s.PGVector != nil {
		if err := s.PGVector.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close PostgreSQL")
		}
	}
	if s.resumePG != nil {
		if err := s.resumePG.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close PostgreSQL resume index")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close Redis")
		}
	}
}
