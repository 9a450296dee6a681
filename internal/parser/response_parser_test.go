package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScore(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		score    float64
		feedback string
		tier     ParseTier
	}{
		{"json payload", `Here you go: {"score": 15, "feedback": "Clear answer."}`, 15, "Clear answer.", TierJSON},
		{"fenced json with string score", "```json\n{\"score\": \"18/20\", \"feedback\": \"Good\"}\n```", 18, "Good", TierJSON},
		{"json with unescaped quotes", `{"feedback": "He said "hello" twice", "score": 3}`, 3, `He said "hello" twice`, TierJSON},
		{"labeled text", "Score: 12/20\nFeedback: Needs more detail.", 12, "Needs more detail.", TierPattern},
		{"markdown labels", "**Score**: 7\n**Feedback**: Too vague", 7, "Too vague", TierPattern},
		{"feedback before score on one line", "Feedback: vague. Score: 4", 4, "vague.", TierPattern},
		{"json without score falls to pattern", `{"feedback": "n/a"} score = 4`, 4, "", TierPattern},
		{"nothing parseable", "I cannot evaluate this answer.", 0, "", TierDefault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, tier := ParseScore(tc.raw)
			assert.Equal(t, tc.tier, tier)
			assert.Equal(t, tc.score, got.Score)
			if tc.feedback != "" {
				assert.Equal(t, tc.feedback, got.Feedback)
			}
		})
	}
}

func TestParseDetailed(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		got, tier := ParseDetailed(`{"clarity": 15, "coherence": 14, "confidence": 12, "technical_depth": 18, "engagement": 16, "feedback": "Solid"}`)
		assert.Equal(t, TierJSON, tier)
		assert.Equal(t, [5]float64{15, 14, 12, 18, 16}, got.Scores)
		assert.Equal(t, "Solid", got.Feedback)
	})

	t.Run("camel case key", func(t *testing.T) {
		got, tier := ParseDetailed(`{"Clarity": 1, "Coherence": 2, "Confidence": 3, "technicalDepth": 4, "Engagement": 5}`)
		assert.Equal(t, TierJSON, tier)
		assert.Equal(t, [5]float64{1, 2, 3, 4, 5}, got.Scores)
	})

	t.Run("labeled text", func(t *testing.T) {
		raw := "Clarity: 15\nCoherence: 14\nConfidence: 12\nTechnical Depth: 18\nEngagement: 16\nFeedback: Solid"
		got, tier := ParseDetailed(raw)
		assert.Equal(t, TierPattern, tier)
		assert.Equal(t, [5]float64{15, 14, 12, 18, 16}, got.Scores)
		assert.Equal(t, "Solid", got.Feedback)
	})

	t.Run("missing dimension", func(t *testing.T) {
		_, tier := ParseDetailed("Clarity: 15\nCoherence: 14\nConfidence: 12\nTechnical Depth: 18")
		assert.Equal(t, TierDefault, tier)
	})

	t.Run("incomplete json falls back to text", func(t *testing.T) {
		raw := `{"clarity": 20} Clarity: 10, Coherence: 11, Confidence: 12, technical_depth: 13, Engagement: 14`
		got, tier := ParseDetailed(raw)
		assert.Equal(t, TierPattern, tier)
		assert.Equal(t, [5]float64{20, 11, 12, 13, 14}, got.Scores)
	})
}

func TestExtractQuestion(t *testing.T) {
	cases := map[string]string{
		"\n\n1. What is your favourite Go feature?\n2. Another": "What is your favourite Go feature?",
		"**Question 1:** Tell me about X.":                      "Tell me about X.",
		"- Why Go?":                                             "Why Go?",
		"(2) How do you test?":                                  "How do you test?",
		`"What motivates you?"`:                                 "What motivates you?",
		"Q3: Describe a hard bug.":                              "Describe a hard bug.",
		"Quickly describe your last project.":                   "Quickly describe your last project.",
		"2024: what changed in your role?":                      "2024: what changed in your role?",
		"12) Walk me through a rollout.":                        "Walk me through a rollout.",
		"   \n\t\n":                                             "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, ExtractQuestion(raw), "input %q", raw)
	}
}

func TestExtractQuestions(t *testing.T) {
	raw := "Here are questions:\n1. A?\n\n2. B?\n3. C?"
	assert.Equal(t, []string{"Here are questions:", "A?", "B?"}, ExtractQuestions(raw, 3))
	assert.Len(t, ExtractQuestions(raw, 0), 4)
}

func TestParseAnalysis(t *testing.T) {
	score, intro, found := ParseAnalysis("Score: 85/100\nAlice is a seasoned engineer.\nShe led teams.")
	assert.True(t, found)
	assert.Equal(t, 85, score)
	assert.Equal(t, "Alice is a seasoned engineer. She led teams.", intro)

	score, intro, found = ParseAnalysis(`{"score": 92, "intro": "Great."}`)
	assert.True(t, found)
	assert.Equal(t, 92, score)
	assert.Equal(t, "Great.", intro)

	_, intro, found = ParseAnalysis("No numbers here")
	assert.False(t, found)
	assert.Equal(t, "No numbers here", intro)
}

func TestParseSummary(t *testing.T) {
	got := ParseSummary(`{"summary": "Strong", "strengths": ["Go", "SQL"], "weaknesses": "Testing"}`)
	assert.Equal(t, "Strong", got.Summary)
	assert.Equal(t, []string{"Go", "SQL"}, got.Strengths)
	assert.Equal(t, []string{"Testing"}, got.Weaknesses)

	got = ParseSummary("  Overall a good interview.  ")
	assert.Equal(t, "Overall a good interview.", got.Summary)
	assert.Empty(t, got.Strengths)
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": "b}c", "d": {"e": 1}}`, ExtractJSONObject(`prefix {"a": "b}c", "d": {"e": 1}} suffix`))
	assert.Equal(t, "", ExtractJSONObject("no braces"))
	assert.Equal(t, "", ExtractJSONObject(`{"unterminated": 1`))
}
