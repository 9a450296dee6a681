// Package matching 维护岗位向量索引，为候选人资料检索最相近的岗位。
package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ai-interviewer/internal/types"
)

// Index 相似度索引。Upsert 覆盖同一 docID 的旧向量；
// Query 返回至多 k 个结果，相似度在 [0,1] 内降序，相同时按 docID 升序。
type Index interface {
	Upsert(ctx context.Context, docID string, vector []float32, metadata map[string]any) error
	Query(ctx context.Context, vector []float32, k int) ([]types.ScoredDoc, error)
}

type indexEntry struct {
	vector   []float32
	norm     float64
	metadata map[string]any
}

// MemoryIndex 进程内索引。条目写入后不再修改，更新时整体替换，
// 查询读到的要么是旧条目要么是新条目。
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]*indexEntry
	dim     int
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex 创建空索引
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]*indexEntry)}
}

func (m *MemoryIndex) Upsert(_ context.Context, docID string, vector []float32, metadata map[string]any) error {
	if docID == "" {
		return types.NewInvalidInputError("index_upsert", "empty doc id")
	}
	if len(vector) == 0 {
		return types.NewInvalidInputError("index_upsert", "empty vector")
	}

	entry := &indexEntry{
		vector: append([]float32(nil), vector...),
		norm:   norm(vector),
	}
	if len(metadata) > 0 {
		entry.metadata = make(map[string]any, len(metadata))
		for k, v := range metadata {
			entry.metadata[k] = v
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim != 0 && m.dim != len(vector) {
		return types.NewInvalidInputError("index_upsert",
			fmt.Sprintf("vector dimension %d does not match index dimension %d", len(vector), m.dim))
	}
	m.dim = len(vector)
	m.entries[docID] = entry
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int) ([]types.ScoredDoc, error) {
	if k <= 0 {
		return []types.ScoredDoc{}, nil
	}
	qNorm := norm(vector)

	m.mu.RLock()
	if m.dim != 0 && m.dim != len(vector) {
		m.mu.RUnlock()
		return nil, types.NewInvalidInputError("index_query",
			fmt.Sprintf("vector dimension %d does not match index dimension %d", len(vector), m.dim))
	}
	results := make([]types.ScoredDoc, 0, len(m.entries))
	for id, e := range m.entries {
		results = append(results, types.ScoredDoc{
			DocID:      id,
			Similarity: CosineSimilarity(vector, qNorm, e.vector, e.norm),
			Metadata:   e.metadata,
		})
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return RankTopK(results, k), nil
}

// Len 当前条目数
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RankTopK 按相似度降序、docID 升序排序后截取前 k 个
func RankTopK(docs []types.ScoredDoc, k int) []types.ScoredDoc {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Similarity != docs[j].Similarity {
			return docs[i].Similarity > docs[j].Similarity
		}
		return docs[i].DocID < docs[j].DocID
	})
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs
}

// ClampSimilarity 把 1-距离 限制在 [0,1]
func ClampSimilarity(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(0, math.Min(1, s))
}

// CosineSimilarity 余弦相似度，零向量相似度为 0
func CosineSimilarity(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return ClampSimilarity(dot / (aNorm * bNorm))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
