package interview

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-interviewer/internal/types"
)

func newEvaluator(gen *fakeGenerator) (*Evaluator, *types.Session, func() *types.Session) {
	store := newStore()
	sess, _ := store.Create(context.Background(), sessionParams())
	ev := NewEvaluator(gen, store, WithEvaluatorLogger(zerolog.Nop()))
	reload := func() *types.Session {
		s, _ := store.Get(context.Background(), sess.ID)
		return s
	}
	return ev, sess, reload
}

func TestScoreSimple(t *testing.T) {
	cases := []struct {
		name     string
		reply    string
		sub      float64
		feedback string
		fallback bool
	}{
		{"json", `Sure! {"score": 15, "feedback": "Good structure."}`, 15, "Good structure.", false},
		{"pattern", "Score: 12\nFeedback: Needs examples.", 12, "Needs examples.", false},
		{"clamped high", `{"score": 35, "feedback": "Wow."}`, 20, "Wow.", false},
		{"clamped low", `{"score": -4, "feedback": "Off topic."}`, 0, "Off topic.", false},
		{"unparseable", "I cannot grade this.", 0, fallbackSimpleFeedback, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, sess, reload := newEvaluator(sequence(tc.reply))
			res, err := ev.ScoreSimple(context.Background(), sess.ID, "Q", "A", 30)
			require.NoError(t, err)
			assert.Equal(t, tc.sub, res.SubScore)
			assert.Equal(t, tc.feedback, res.Feedback)
			assert.Equal(t, 30+tc.sub, res.NewTotal)
			assert.Equal(t, tc.fallback, res.Fallback)

			got := reload()
			require.Len(t, got.Turns, 1)
			assert.Equal(t, types.RoleSystem, got.Turns[0].Role)
			assert.Equal(t, sess.Score+tc.sub, got.Score)
		})
	}
}

func TestScoreSimple_OracleFailureIsAbsorbed(t *testing.T) {
	ev, sess, _ := newEvaluator(failing(types.NewGenerationError("invoke", 3, errors.New("timeout"))))
	res, err := ev.ScoreSimple(context.Background(), sess.ID, "Q", "A", 10)
	require.NoError(t, err)
	assert.Zero(t, res.SubScore)
	assert.Equal(t, 10.0, res.NewTotal)
	assert.True(t, res.Fallback)
}

func TestScoreSimple_UnknownSession(t *testing.T) {
	ev, _, _ := newEvaluator(sequence(`{"score": 10}`))
	_, err := ev.ScoreSimple(context.Background(), "missing", "Q", "A", 0)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestScoreDetailed(t *testing.T) {
	ev, sess, reload := newEvaluator(sequence(
		`{"clarity": 10.111, "coherence": 10, "confidence": 25, "technical_depth": -3, "engagement": 10, "feedback": "Mixed."}`))
	res, err := ev.ScoreDetailed(context.Background(), sess.ID, "Q", "A")
	require.NoError(t, err)

	assert.Equal(t, 10.111, res.Clarity)
	assert.Equal(t, 20.0, res.Confidence)
	assert.Equal(t, 0.0, res.TechnicalDepth)
	assert.Equal(t, 10.02, res.Average)
	assert.Equal(t, "Mixed.", res.Feedback)
	assert.False(t, res.Fallback)

	got := reload()
	require.Len(t, got.Turns, 1)
	assert.Equal(t, sess.Score, got.Score)
}

func TestScoreDetailed_PatternTier(t *testing.T) {
	ev, sess, _ := newEvaluator(sequence("Clarity: 14\nCoherence: 13\nConfidence: 12\nTechnical depth: 16\nEngagement: 15\nFeedback: Solid."))
	res, err := ev.ScoreDetailed(context.Background(), sess.ID, "Q", "A")
	require.NoError(t, err)
	assert.Equal(t, 16.0, res.TechnicalDepth)
	assert.Equal(t, 14.0, res.Average)
}

func TestScoreDetailed_Fallbacks(t *testing.T) {
	for name, gen := range map[string]*fakeGenerator{
		"missing dimension": sequence(`{"clarity": 15, "coherence": 15, "confidence": 15, "engagement": 15}`),
		"oracle failure":    failing(types.NewGenerationError("invoke", 3, errors.New("boom"))),
	} {
		t.Run(name, func(t *testing.T) {
			ev, sess, _ := newEvaluator(gen)
			res, err := ev.ScoreDetailed(context.Background(), sess.ID, "Q", "A")
			require.NoError(t, err)
			for _, v := range []float64{res.Clarity, res.Coherence, res.Confidence, res.TechnicalDepth, res.Engagement} {
				assert.Equal(t, 10.0, v)
			}
			assert.Equal(t, 10.0, res.Average)
			assert.Equal(t, fallbackDetailedFeedback, res.Feedback)
			assert.True(t, res.Fallback)
		})
	}
}

func TestAverageOf(t *testing.T) {
	assert.Equal(t, 14.2, averageOf([5]float64{13, 14, 15, 12, 17}))
	assert.Equal(t, 0.0, averageOf([5]float64{}))
	assert.Equal(t, 16.67, averageOf([5]float64{20, 20, 20, 20, 3.35}))
}
