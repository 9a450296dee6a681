package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-interviewer/internal/config"
	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/session"
	"ai-interviewer/internal/storage/models"
	"ai-interviewer/internal/types"
)

// newIntegrationMySQL 需要设置 MYSQL_TEST_DSN 指向一个可清空的测试库
func newIntegrationMySQL(t *testing.T) *MySQL {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN 未设置，跳过 MySQL 集成测试")
	}
	m, err := NewMySQL(&config.MySQLConfig{DSN: dsn, MaxIdleConns: 2, MaxOpenConns: 10, LogLevel: 1})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	m.RouteEvent(constants.EventMatchCreated, "match.events.exchange", "match.created")
	m.RouteEvent(constants.EventInterviewCompleted, "interview.events.exchange", "interview.completed")
	return m
}

func TestMySQL_SessionLifecycle(t *testing.T) {
	m := newIntegrationMySQL(t)
	store := session.NewStore(m)
	ctx := context.Background()

	sess, err := store.Create(ctx, session.CreateParams{CandidateName: "Ada", ProfileText: "Go", Score: 80})
	require.NoError(t, err)

	_, err = store.Append(ctx, sess.ID, types.RoleInterviewer, "Q1")
	require.NoError(t, err)
	_, err = store.Append(ctx, sess.ID, types.RoleSystem, "score", session.WithScoreDelta(7.5))
	require.NoError(t, err)
	_, err = store.Append(ctx, sess.ID, types.RoleSystem, "bye", session.WithStatus(types.StatusCompleted),
		session.WithEvent(session.Event{Type: constants.EventInterviewCompleted, AggregateID: sess.ID, Payload: map[string]any{"session_id": sess.ID}}))
	require.NoError(t, err)

	var events int64
	require.NoError(t, m.DB().Model(&models.OutboxMessage{}).
		Where("aggregate_id = ? AND event_type = ?", sess.ID, constants.EventInterviewCompleted).
		Count(&events).Error)
	assert.EqualValues(t, 1, events)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.InDelta(t, 87.5, got.Score, 1e-9)
	require.Len(t, got.Turns, 3)
	for i, turn := range got.Turns {
		assert.Equal(t, i+1, turn.Seq)
	}

	_, err = store.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, types.ErrSessionNotFound))
}

// TestMySQL_ConcurrentAppend 并发追加时 seq 连续且不重复
func TestMySQL_ConcurrentAppend(t *testing.T) {
	m := newIntegrationMySQL(t)
	store := session.NewStore(m)
	ctx := context.Background()

	sess, err := store.Create(ctx, session.CreateParams{CandidateName: "Grace"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, sess.ID, types.RoleCandidate, "answer")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 10)
	for i, turn := range got.Turns {
		assert.Equal(t, i+1, turn.Seq)
	}
}

func TestMySQL_JobsAndMatches(t *testing.T) {
	m := newIntegrationMySQL(t)
	ctx := context.Background()
	ext := "it-" + time.Now().Format("150405.000000")

	first, err := m.UpsertJob(ctx, types.JobInput{Source: constants.SourceRemoteOK, ExternalID: ext, Title: "Go", Description: "v1"})
	require.NoError(t, err)
	second, err := m.UpsertJob(ctx, types.JobInput{Source: constants.SourceRemoteOK, ExternalID: ext, Title: "Go", Description: "v2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "v2", second.Description)

	manual, err := m.UpsertJob(ctx, types.JobInput{Source: constants.SourceManual, Title: "Rust", Description: "d"})
	require.NoError(t, err)
	assert.Empty(t, manual.ExternalID)

	jobs, err := m.GetJobs(ctx, []string{first.ID, manual.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	require.NoError(t, m.SaveMatches(ctx, []types.MatchRecord{{JobID: first.ID, Similarity: 0.9}}))

	var pending int64
	require.NoError(t, m.DB().Model(&models.OutboxMessage{}).
		Where("aggregate_id = ? AND event_type = ?", first.ID, constants.EventMatchCreated).
		Count(&pending).Error)
	assert.EqualValues(t, 1, pending)
}
