package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-interviewer/internal/types"
)

func newTestStore(opts ...StoreOption) *Store {
	opts = append([]StoreOption{WithLogger(zerolog.Nop())}, opts...)
	return NewStore(NewMemoryRepository(), opts...)
}

func TestCreate_Defaults(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	sess, err := store.Create(ctx, CreateParams{ProfileText: "Go developer"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "Candidate", sess.CandidateName)
	assert.Equal(t, types.StatusInProgress, sess.Status)
	assert.Zero(t, sess.Score)
	assert.Empty(t, sess.Turns)

	other, err := store.Create(ctx, CreateParams{CandidateName: "Ada", Score: 80})
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID)
	assert.Equal(t, 80.0, other.Score)
}

func TestGet_UnknownSession(t *testing.T) {
	_, err := newTestStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestAppend_OrderAndMutation(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	sess, err := store.Create(ctx, CreateParams{Score: 10})
	require.NoError(t, err)

	_, err = store.Append(ctx, sess.ID, types.RoleInterviewer, "Q1")
	require.NoError(t, err)
	_, err = store.Append(ctx, sess.ID, types.RoleCandidate, "A1")
	require.NoError(t, err)
	turn, err := store.Append(ctx, sess.ID, types.RoleSystem, "score", WithScoreDelta(7.5))
	require.NoError(t, err)
	assert.Equal(t, 3, turn.Seq)

	_, err = store.Append(ctx, sess.ID, types.RoleSystem, "bye", WithStatus(types.StatusCompleted))
	require.NoError(t, err)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 4)
	for i, tr := range got.Turns {
		assert.Equal(t, i+1, tr.Seq)
	}
	assert.Equal(t, []string{"Q1"}, got.Questions())
	assert.Equal(t, 17.5, got.Score)
	assert.True(t, got.Completed())
}

func TestAppend_Errors(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.Append(ctx, "missing", types.RoleCandidate, "hello")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	sess, err := store.Create(ctx, CreateParams{})
	require.NoError(t, err)
	_, err = store.Append(ctx, sess.ID, types.Role("judge"), "hello")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	sess, err := store.Create(ctx, CreateParams{})
	require.NoError(t, err)
	_, err = store.Append(ctx, sess.ID, types.RoleInterviewer, "Q1")
	require.NoError(t, err)

	snap, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	snap.Turns[0].Content = "tampered"
	snap.Score = 99

	again, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q1", again.Turns[0].Content)
	assert.Zero(t, again.Score)
}

func TestAppend_ConcurrentScoreDeltas(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	sess, err := store.Create(ctx, CreateParams{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, sess.ID, types.RoleSystem, "delta", WithScoreDelta(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Turns, 50)
	assert.Equal(t, 50.0, got.Score)
}

type failingRepo struct {
	*MemoryRepository
}

func (failingRepo) AppendTurn(context.Context, string, *types.Turn, Mutation) error {
	return errors.New("disk full")
}

func TestAppend_PersistenceFailure(t *testing.T) {
	repo := failingRepo{NewMemoryRepository()}
	store := NewStore(repo, WithLogger(zerolog.Nop()))
	ctx := context.Background()
	sess, err := store.Create(ctx, CreateParams{})
	require.NoError(t, err)

	_, err = store.Append(ctx, sess.ID, types.RoleCandidate, "hello")
	assert.ErrorIs(t, err, types.ErrPersistenceFailure)
	assert.Contains(t, err.Error(), "disk full")
}

func TestLock_SerialisesPerSession(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	unlock, err := store.Lock(ctx, "s1")
	require.NoError(t, err)

	// 其他会话不受影响
	unlockOther, err := store.Lock(ctx, "s2")
	require.NoError(t, err)
	unlockOther()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = store.Lock(waitCtx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		u, err := store.Lock(ctx, "s1")
		if err == nil {
			close(acquired)
			u()
		}
	}()
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not handed over")
	}
	unlock() // 重复调用无副作用

	assert.Eventually(t, func() bool { return store.locks.size() == 0 }, time.Second, 5*time.Millisecond)
}

type fakeDistributedLocker struct {
	mu       sync.Mutex
	held     map[string]string
	acquires int
	releases int
}

func (f *fakeDistributedLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	if _, ok := f.held[key]; ok {
		return "", nil
	}
	f.held[key] = "token"
	return "token", nil
}

func (f *fakeDistributedLocker) ReleaseLock(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	if f.held[key] != value {
		return false, nil
	}
	delete(f.held, key)
	return true, nil
}

func TestLock_DistributedLock(t *testing.T) {
	dl := &fakeDistributedLocker{held: map[string]string{}}
	store := newTestStore(WithDistributedLock(dl, time.Minute))
	ctx := context.Background()

	unlock, err := store.Lock(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, dl.held, "app:interview:lock:s1")
	unlock()
	assert.Empty(t, dl.held)
	assert.Equal(t, 1, dl.releases)

	// 其他副本持有锁时，等待直到上下文结束，并释放进程内锁
	dl.held["app:interview:lock:s2"] = "other"
	waitCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, err = store.Lock(waitCtx, "s2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, dl.acquires, 2)
	assert.Equal(t, 0, store.locks.size())
}
