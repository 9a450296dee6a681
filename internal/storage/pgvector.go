package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"ai-interviewer/internal/config"
	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/matching"
	"ai-interviewer/internal/types"
)

var _ matching.Index = (*PGVector)(nil)

// PGVector 把岗位向量保存在 PostgreSQL 的 pgvector 列中
type PGVector struct {
	db        *sqlx.DB
	table     string
	dimension int
	logger    zerolog.Logger
}

type pgVectorRow struct {
	DocID      string  `db:"doc_id"`
	Similarity float64 `db:"similarity"`
	Metadata   []byte  `db:"metadata"`
}

// NewPGVector 连接数据库并创建扩展和表
func NewPGVector(ctx context.Context, cfg *config.PGVectorConfig) (*PGVector, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector dsn 不能为空")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector 向量维度必须大于0")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接PostgreSQL失败: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	p := &PGVector{db: db, table: pq.QuoteIdentifier(cfg.Table), dimension: cfg.Dimension, logger: logger.Named("pgvector")}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	p.logger.Info().Str("table", cfg.Table).Int("dimension", cfg.Dimension).Msg("pgvector index ready")
	return p, nil
}

func (p *PGVector) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			doc_id     TEXT PRIMARY KEY,
			embedding  vector(%d) NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, p.table, p.dimension),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("初始化 pgvector 表失败: %w", err)
		}
	}
	return nil
}

// Upsert 写入或覆盖文档向量
func (p *PGVector) Upsert(ctx context.Context, docID string, vector []float32, metadata map[string]any) error {
	if docID == "" {
		return types.NewInvalidInputError("index_upsert", "empty doc id")
	}
	if len(vector) != p.dimension {
		return types.NewInvalidInputError("index_upsert",
			fmt.Sprintf("vector dimension %d does not match index dimension %d", len(vector), p.dimension))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("序列化元数据失败: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (doc_id, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (doc_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`, p.table)
	_, err = p.db.ExecContext(ctx, query, docID, pgvector.NewVector(vector), meta)
	return err
}

// Query 使用余弦距离 <=> 检索最近的 k 个文档
func (p *PGVector) Query(ctx context.Context, vector []float32, k int) ([]types.ScoredDoc, error) {
	if k <= 0 {
		return []types.ScoredDoc{}, nil
	}
	if len(vector) != p.dimension {
		return nil, types.NewInvalidInputError("index_query",
			fmt.Sprintf("vector dimension %d does not match index dimension %d", len(vector), p.dimension))
	}

	query := fmt.Sprintf(`
		SELECT doc_id, 1 - (embedding <=> $1) AS similarity, metadata
		FROM %s
		ORDER BY embedding <=> $1, doc_id
		LIMIT $2
	`, p.table)
	var rows []pgVectorRow
	if err := p.db.SelectContext(ctx, &rows, query, pgvector.NewVector(vector), k+queryOverfetch); err != nil {
		return nil, err
	}

	docs := make([]types.ScoredDoc, 0, len(rows))
	for _, r := range rows {
		doc := types.ScoredDoc{DocID: r.DocID, Similarity: matching.ClampSimilarity(r.Similarity)}
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &doc.Metadata); err != nil {
				p.logger.Warn().Err(err).Str("doc_id", r.DocID).Msg("忽略无法解析的向量元数据")
				doc.Metadata = nil
			}
		}
		docs = append(docs, doc)
	}
	return matching.RankTopK(docs, k), nil
}

// Close 关闭连接池
func (p *PGVector) Close() error {
	return p.db.Close()
}
