package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-interviewer/internal/session"
	"ai-interviewer/internal/types"
)

// fakeGenerator 记录每次的提示词，按 respond 返回
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	respond func(n int, prompt string) (string, error)
}

func (f *fakeGenerator) Invoke(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	n := len(f.prompts)
	f.mu.Unlock()
	return f.respond(n, prompt)
}

func (f *fakeGenerator) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// sequence 依次返回 replies，用完后一直返回最后一个
func sequence(replies ...string) *fakeGenerator {
	return &fakeGenerator{respond: func(n int, _ string) (string, error) {
		if n > len(replies) {
			n = len(replies)
		}
		return replies[n-1], nil
	}}
}

// numbered 每次返回一个新问题
func numbered() *fakeGenerator {
	return &fakeGenerator{respond: func(n int, _ string) (string, error) {
		return fmt.Sprintf("%d. What did you learn from project %d?", n, n), nil
	}}
}

func failing(err error) *fakeGenerator {
	return &fakeGenerator{respond: func(int, string) (string, error) { return "", err }}
}

func newStore() *session.Store {
	return session.NewStore(session.NewMemoryRepository(), session.WithLogger(zerolog.Nop()))
}

func newController(gen *fakeGenerator, store *session.Store, opts ...ControllerOption) *Controller {
	opts = append([]ControllerOption{WithControllerLogger(zerolog.Nop())}, opts...)
	return NewController(gen, store, opts...)
}

func createSession(t *testing.T, store *session.Store, profile string, score float64) *types.Session {
	t.Helper()
	sess, err := store.Create(context.Background(), session.CreateParams{ProfileText: profile, Score: score})
	require.NoError(t, err)
	return sess
}

func TestAdvance_OpeningQuestion(t *testing.T) {
	store := newStore()
	gen := sequence("1. Tell me about leading your team of four.\n2. ignored")
	ctrl := newController(gen, store)
	sess := createSession(t, store, "5 years Python, led a team of 4", 80)

	res, err := ctrl.Advance(context.Background(), sess.ID, "")
	require.NoError(t, err)
	assert.False(t, res.Completed)
	require.NotNil(t, res.Question)
	assert.Equal(t, "Tell me about leading your team of four.", *res.Question)
	assert.Nil(t, res.ClosingMessage)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "5 years Python, led a team of 4")
	assert.Contains(t, prompts[0], "80 out of 100")

	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 1)
	assert.Equal(t, types.RoleInterviewer, got.Turns[0].Role)
}

func TestAdvance_FullInterviewIsCappedAndIdempotent(t *testing.T) {
	store := newStore()
	ctrl := newController(numbered(), store)
	ctx := context.Background()
	sess := createSession(t, store, "Go developer", 70)

	answer := ""
	for i := 0; i < 5; i++ {
		res, err := ctrl.Advance(ctx, sess.ID, answer)
		require.NoError(t, err)
		assert.False(t, res.Completed)
		require.NotNil(t, res.Question)
		answer = fmt.Sprintf("answer %d", i+1)
	}

	first, err := ctrl.Advance(ctx, sess.ID, answer)
	require.NoError(t, err)
	assert.True(t, first.Completed)
	assert.Nil(t, first.Question)
	require.NotNil(t, first.ClosingMessage)

	done, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, done.Status)
	assert.Equal(t, 5, done.CountRole(types.RoleInterviewer))
	assert.Equal(t, 5, done.CountRole(types.RoleCandidate))
	last, _ := done.LastTurn(types.RoleCandidate)
	assert.Equal(t, "answer 5", last.Content)

	second, err := ctrl.Advance(ctx, sess.ID, "one more thing")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	again, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, again.Turns, len(done.Turns))
}

func TestAdvance_SessionAlreadyAtCap(t *testing.T) {
	store := newStore()
	gen := numbered()
	ctrl := newController(gen, store)
	ctx := context.Background()
	sess := createSession(t, store, "profile", 50)
	for i := 1; i <= 5; i++ {
		_, err := store.Append(ctx, sess.ID, types.RoleInterviewer, fmt.Sprintf("Q%d", i))
		require.NoError(t, err)
	}

	first, err := ctrl.Advance(ctx, sess.ID, "")
	require.NoError(t, err)
	second, err := ctrl.Advance(ctx, sess.ID, "")
	require.NoError(t, err)

	assert.True(t, first.Completed)
	assert.Nil(t, first.Question)
	assert.NotNil(t, first.ClosingMessage)
	assert.Equal(t, first, second)
	assert.Empty(t, gen.Prompts())
}

func TestAdvance_RegeneratesDuplicates(t *testing.T) {
	store := newStore()
	gen := sequence("1. Why Go?", "Why Go?", "", "- How do you test concurrency?")
	ctrl := newController(gen, store)
	ctx := context.Background()
	sess := createSession(t, store, "profile", 60)

	_, err := ctrl.Advance(ctx, sess.ID, "")
	require.NoError(t, err)

	res, err := ctrl.Advance(ctx, sess.ID, "Because of goroutines")
	require.NoError(t, err)
	require.NotNil(t, res.Question)
	assert.Equal(t, "How do you test concurrency?", *res.Question)

	prompts := gen.Prompts()
	require.Len(t, prompts, 4)
	assert.Contains(t, prompts[1], "Because of goroutines")
	assert.Contains(t, prompts[2], "must not be repeated")

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Why Go?", "How do you test concurrency?"}, got.Questions())
}

func TestAdvance_DuplicateUnresolvedLeavesSessionUnchanged(t *testing.T) {
	store := newStore()
	gen := sequence("Why Go?")
	ctrl := newController(gen, store)
	ctx := context.Background()
	sess := createSession(t, store, "profile", 60)

	_, err := ctrl.Advance(ctx, sess.ID, "")
	require.NoError(t, err)
	before, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)

	_, err = ctrl.Advance(ctx, sess.ID, "my answer")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDuplicateQuestionUnresolved)
	assert.Len(t, gen.Prompts(), 1+DefaultRegenerateLimit)

	after, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Turns, after.Turns)
}

func TestAdvance_GenerationFailureLeavesSessionUnchanged(t *testing.T) {
	store := newStore()
	genErr := types.NewGenerationError("invoke", 3, errors.New("upstream 503"))
	ctrl := newController(failing(genErr), store)
	ctx := context.Background()
	sess := createSession(t, store, "profile", 60)

	_, err := ctrl.Advance(ctx, sess.ID, "an answer")
	assert.ErrorIs(t, err, types.ErrGenerationFailure)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Turns)
}

func TestAdvance_WhitespaceAnswerIsNotRecorded(t *testing.T) {
	store := newStore()
	ctrl := newController(numbered(), store)
	ctx := context.Background()
	sess := createSession(t, store, "profile", 60)

	_, err := ctrl.Advance(ctx, sess.ID, "   \n\t")
	require.NoError(t, err)
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CountRole(types.RoleCandidate))
}

func TestAdvance_FollowUpUsesRecentWindow(t *testing.T) {
	store := newStore()
	gen := numbered()
	ctrl := newController(gen, store)
	ctx := context.Background()
	sess := createSession(t, store, "profile", 60)

	for i := 0; i < 5; i++ {
		_, err := ctrl.Advance(ctx, sess.ID, fmt.Sprintf("answer %d", i))
		require.NoError(t, err)
	}
	prompts := gen.Prompts()
	last := prompts[len(prompts)-1]
	assert.NotContains(t, last, "project 1?")
	assert.Contains(t, last, "project 2?")
	assert.Contains(t, last, "project 4?")
	assert.Contains(t, last, "answer 4")
}

func TestAdvance_UnknownSession(t *testing.T) {
	ctrl := newController(numbered(), newStore())
	_, err := ctrl.Advance(context.Background(), "missing", "")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestAdvance_ConcurrentCallsRespectCap(t *testing.T) {
	store := newStore()
	ctrl := newController(numbered(), store)
	ctx := context.Background()
	sess := createSession(t, store, "profile", 60)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ctrl.Advance(ctx, sess.ID, fmt.Sprintf("answer %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.CountRole(types.RoleInterviewer))
	assert.Equal(t, types.StatusCompleted, got.Status)

	seen := map[string]bool{}
	for _, q := range got.Questions() {
		assert.False(t, seen[q], "duplicate question %q", q)
		seen[q] = true
	}
}

func TestAdvance_CompletionHooksRunOnce(t *testing.T) {
	store := newStore()
	var mu sync.Mutex
	var calls []string
	hook := func(_ context.Context, s *types.Session) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, s.ID)
		return errors.New("archive unavailable")
	}
	ctrl := newController(numbered(), store, WithMaxQuestions(1), WithCompletionHook(hook))
	ctx := context.Background()
	sess := createSession(t, store, "profile", 60)

	_, err := ctrl.Advance(ctx, sess.ID, "")
	require.NoError(t, err)
	res, err := ctrl.Advance(ctx, sess.ID, "done")
	require.NoError(t, err)
	assert.True(t, res.Completed)
	_, err = ctrl.Advance(ctx, sess.ID, "")
	require.NoError(t, err)

	assert.Equal(t, []string{sess.ID}, calls)
}

// runToCap 问满五个问题，返回最后一个回答
func runToCap(t *testing.T, ctrl *Controller, sessionID string) string {
	t.Helper()
	answer := ""
	for i := 0; i < 5; i++ {
		_, err := ctrl.Advance(context.Background(), sessionID, answer)
		require.NoError(t, err)
		answer = fmt.Sprintf("answer %d", i+1)
	}
	return answer
}

func TestAdvance_CompletionWritesEventWithClosingTurn(t *testing.T) {
	repo := session.NewMemoryRepository()
	store := session.NewStore(repo, session.WithLogger(zerolog.Nop()))
	ctrl := newController(numbered(), store)
	ctx := context.Background()
	sess, err := store.Create(ctx, session.CreateParams{CandidateName: "Ada", ProfileText: "Go", Score: 42})
	require.NoError(t, err)

	answer := runToCap(t, ctrl, sess.ID)
	assert.Empty(t, repo.Events())

	_, err = ctrl.Advance(ctx, sess.ID, answer)
	require.NoError(t, err)
	_, err = ctrl.Advance(ctx, sess.ID, "late answer")
	require.NoError(t, err)

	events := repo.Events()
	require.Len(t, events, 1, "结束后的重复调用不再写事件")
	assert.Equal(t, "interview.completed", events[0].Type)
	assert.Equal(t, sess.ID, events[0].AggregateID)
	payload := events[0].Payload.(CompletedEvent)
	assert.Equal(t, 5, payload.Questions)
	assert.Equal(t, 42.0, payload.Score)
	assert.Equal(t, "Ada", payload.CandidateName)
}

// eventRejectingRepo 带事件的追加一律失败，模拟发件箱写入失败
type eventRejectingRepo struct {
	*session.MemoryRepository
}

func (r eventRejectingRepo) AppendTurn(ctx context.Context, sessionID string, turn *types.Turn, mut session.Mutation) error {
	if len(mut.Events) > 0 {
		return errors.New("outbox insert failed")
	}
	return r.MemoryRepository.AppendTurn(ctx, sessionID, turn, mut)
}

func TestAdvance_EventFailureKeepsSessionOpen(t *testing.T) {
	repo := eventRejectingRepo{session.NewMemoryRepository()}
	store := session.NewStore(repo, session.WithLogger(zerolog.Nop()))
	var hooks int
	ctrl := newController(numbered(), store, WithCompletionHook(func(context.Context, *types.Session) error {
		hooks++
		return nil
	}))
	ctx := context.Background()
	sess := createSession(t, store, "Go", 10)

	_, err := ctrl.Advance(ctx, sess.ID, runToCap(t, ctrl, sess.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPersistenceFailure)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, got.Status)
	assert.Empty(t, repo.Events())
	assert.Zero(t, hooks)
}

func TestPrompts(t *testing.T) {
	assert.Contains(t, OpeningPrompt("", 72.5), "(no profile provided)")
	assert.Contains(t, OpeningPrompt("", 72.5), "72.5 out of 100")
	assert.Contains(t, FollowUpPrompt(nil, " "), "(no answer given)")
	summary := SummaryPrompt("p", 80, []types.QA{{Question: "Q", Answer: ""}})
	assert.Contains(t, summary, "Q1: Q\nA1: (no answer)")
	assert.True(t, strings.HasSuffix(withAvoidList("base", []string{"a"}), "- a"))
	assert.Equal(t, "base", withAvoidList("base", nil))
}

func sessionParams() session.CreateParams {
	return session.CreateParams{CandidateName: "Ada", ProfileText: "Backend engineer", Score: 5}
}
