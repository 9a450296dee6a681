// Package session 保存面试会话和对话轮次，是唯一修改会话的入口。
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"

	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/types"
)

// Event 与轮次同一原子单元写入的领域事件，持久化实现负责投递（如发件箱）
type Event struct {
	Type        string
	AggregateID string
	Payload     any
}

// Mutation 与追加轮次一起原子生效的会话修改
type Mutation struct {
	ScoreDelta float64
	Status     types.SessionStatus // 为空表示不修改
	Events     []Event
}

// Repository 会话持久化契约。
// 找不到会话时返回 types.ErrSessionNotFound（可以被包装）。
type Repository interface {
	CreateSession(ctx context.Context, s *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	// AppendTurn 在一个原子单元内分配 Seq/ID、写入轮次并应用 mut
	AppendTurn(ctx context.Context, sessionID string, turn *types.Turn, mut Mutation) error
}

// CreateParams 创建会话的参数
type CreateParams struct {
	CandidateName string
	ProfileText   string
	Intro         string
	Score         float64
}

// AppendOption 追加轮次时附带的修改
type AppendOption func(*Mutation)

// WithScoreDelta 把 delta 累加到会话分数
func WithScoreDelta(delta float64) AppendOption {
	return func(m *Mutation) {
		m.ScoreDelta += delta
	}
}

// WithStatus 同时修改会话状态
func WithStatus(status types.SessionStatus) AppendOption {
	return func(m *Mutation) {
		m.Status = status
	}
}

// WithEvent 与轮次一起写入事件，轮次写入失败时事件也不会留下
func WithEvent(e Event) AppendOption {
	return func(m *Mutation) {
		m.Events = append(m.Events, e)
	}
}

// Store 会话存储
type Store struct {
	repo    Repository
	locks   *keyedLocker
	dlock   DistributedLocker
	lockTTL time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// StoreOption 配置 Store
type StoreOption func(*Store)

// WithDistributedLock 在进程内锁之外再持有一个分布式锁
func WithDistributedLock(l DistributedLocker, ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.dlock = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger 设置日志记录器
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore 创建会话存储
func NewStore(repo Repository, opts ...StoreOption) *Store {
	s := &Store{
		repo:    repo,
		locks:   newKeyedLocker(),
		lockTTL: 2 * time.Minute,
		now:     time.Now,
		logger:  logger.Named("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create 创建一个进行中的空会话
func (s *Store) Create(ctx context.Context, p CreateParams) (*types.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, types.NewPersistenceError("create_session", "", err)
	}
	name := strings.TrimSpace(p.CandidateName)
	if name == "" {
		name = constants.DefaultCandidateName
	}

	sess := &types.Session{
		ID:            id.String(),
		CandidateName: name,
		ProfileText:   p.ProfileText,
		Intro:         p.Intro,
		Status:        types.StatusInProgress,
		Score:         p.Score,
		Turns:         []types.Turn{},
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, types.NewPersistenceError("create_session", sess.ID, err)
	}
	s.logger.Info().Str("session_id", sess.ID).Msg("session created")
	return sess.Clone(), nil
}

// Get 返回会话快照，修改快照不会影响存储
func (s *Store) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, s.classify("get_session", sessionID, err)
	}
	return sess, nil
}

// Append 追加一条轮次，opts 中的修改与追加一起生效
func (s *Store) Append(ctx context.Context, sessionID string, role types.Role, text string, opts ...AppendOption) (*types.Turn, error) {
	if !role.Valid() {
		return nil, types.NewInvalidInputError("append_turn", "unknown role "+string(role))
	}
	var mut Mutation
	for _, opt := range opts {
		opt(&mut)
	}

	turn := &types.Turn{
		SessionID: sessionID,
		Role:      role,
		Content:   text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AppendTurn(ctx, sessionID, turn, mut); err != nil {
		return nil, s.classify("append_turn", sessionID, err)
	}
	s.logger.Debug().
		Str("session_id", sessionID).
		Str("role", string(role)).
		Int("seq", turn.Seq).
		Msg("turn appended")
	return turn, nil
}

// Lock 获取会话的互斥锁，返回的 unlock 必须调用
func (s *Store) Lock(ctx context.Context, sessionID string) (func(), error) {
	release, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.dlock == nil {
		return release, nil
	}

	token, err := acquireDistributed(ctx, s.dlock, sessionLockKey(sessionID), s.lockTTL)
	if err != nil {
		release()
		return nil, err
	}
	return func() {
		// 使用独立的上下文，调用方的上下文可能已经取消
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if ok, err := s.dlock.ReleaseLock(ctx, sessionLockKey(sessionID), token); err != nil || !ok {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to release distributed session lock")
		}
		release()
	}, nil
}

func (s *Store) classify(op, sessionID string, err error) error {
	if errors.Is(err, types.ErrSessionNotFound) {
		return types.NewSessionNotFoundError(op, sessionID)
	}
	var ce *types.CoreError
	if errors.As(err, &ce) {
		return err
	}
	return types.NewPersistenceError(op, sessionID, err)
}
