package matching

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"ai-interviewer/internal/types"
)

// JobRepository 岗位持久化
type JobRepository interface {
	// UpsertJob 按 (source, external_id) 更新或新建岗位；external_id 为空时总是新建
	UpsertJob(ctx context.Context, in types.JobInput) (*types.JobRecord, error)
	// GetJobs 批量读取，不存在的 id 不出现在结果中
	GetJobs(ctx context.Context, ids []string) (map[string]types.JobRecord, error)
}

// MatchRepository 匹配记录持久化，一次调用的记录在同一事务中写入
type MatchRepository interface {
	SaveMatches(ctx context.Context, records []types.MatchRecord) error
}

// MemoryJobRepository 进程内岗位仓库
type MemoryJobRepository struct {
	mu     sync.RWMutex
	jobs   map[string]types.JobRecord
	byKey  map[string]string
	nowFun func() time.Time
}

var _ JobRepository = (*MemoryJobRepository)(nil)

// NewMemoryJobRepository 创建空仓库
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:   make(map[string]types.JobRecord),
		byKey:  make(map[string]string),
		nowFun: time.Now,
	}
}

func (r *MemoryJobRepository) UpsertJob(_ context.Context, in types.JobInput) (*types.JobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFun().UTC()

	key := ""
	if in.ExternalID != "" {
		key = in.Source + "|" + in.ExternalID
		if id, ok := r.byKey[key]; ok {
			rec := r.jobs[id]
			applyJobInput(&rec, in)
			rec.UpdatedAt = now
			r.jobs[id] = rec
			return &rec, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	rec := types.JobRecord{ID: id.String(), CreatedAt: now, UpdatedAt: now}
	applyJobInput(&rec, in)
	r.jobs[rec.ID] = rec
	if key != "" {
		r.byKey[key] = rec.ID
	}
	return &rec, nil
}

func (r *MemoryJobRepository) GetJobs(_ context.Context, ids []string) (map[string]types.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]types.JobRecord, len(ids))
	for _, id := range ids {
		if rec, ok := r.jobs[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

// Delete 删除岗位，索引中的向量保留
func (r *MemoryJobRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[id]
	if !ok {
		return
	}
	delete(r.jobs, id)
	if rec.ExternalID != "" {
		delete(r.byKey, rec.Source+"|"+rec.ExternalID)
	}
}

// Len 岗位数量
func (r *MemoryJobRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func applyJobInput(rec *types.JobRecord, in types.JobInput) {
	rec.Source = in.Source
	rec.ExternalID = in.ExternalID
	rec.Title = in.Title
	rec.Company = in.Company
	rec.Location = in.Location
	rec.Description = in.Description
	rec.URL = in.URL
}

// MemoryMatchRepository 进程内匹配记录，只追加
type MemoryMatchRepository struct {
	mu      sync.Mutex
	records []types.MatchRecord
}

var _ MatchRepository = (*MemoryMatchRepository)(nil)

// NewMemoryMatchRepository 创建空仓库
func NewMemoryMatchRepository() *MemoryMatchRepository {
	return &MemoryMatchRepository{}
}

func (r *MemoryMatchRepository) SaveMatches(_ context.Context, records []types.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		rec.ID = uint64(len(r.records) + 1)
		r.records = append(r.records, rec)
	}
	return nil
}

// Records 返回全部记录的副本
func (r *MemoryMatchRepository) Records() []types.MatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.MatchRecord(nil), r.records...)
}
