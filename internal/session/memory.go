package session

import (
	"context"
	"fmt"
	"sync"

	"ai-interviewer/internal/types"
)

// MemoryRepository 进程内的会话仓库，单机部署和测试使用
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	events   []Event
	nextID   uint64
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository 创建空仓库
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*types.Session)}
}

func (r *MemoryRepository) CreateSession(_ context.Context, s *types.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, sessionID string) (*types.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) AppendTurn(_ context.Context, sessionID string, turn *types.Turn, mut Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return types.ErrSessionNotFound
	}

	r.nextID++
	turn.ID = r.nextID
	turn.SessionID = sessionID
	turn.Seq = len(s.Turns) + 1
	s.Turns = append(s.Turns, *turn)
	s.Score += mut.ScoreDelta
	if mut.Status != "" {
		s.Status = mut.Status
	}
	r.events = append(r.events, mut.Events...)
	return nil
}

// Events 按写入顺序返回全部事件
func (r *MemoryRepository) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event(nil), r.events...)
}
