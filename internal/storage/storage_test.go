package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"

	"ai-interviewer/internal/config"
	"ai-interviewer/internal/storage/models"
	"ai-interviewer/internal/types"
)

func TestBuildDSN(t *testing.T) {
	cfg := &config.MySQLConfig{Host: "db", Port: 3306, Username: "u", Password: "p", Database: "interviews"}
	dsn := buildDSN(cfg)
	assert.Contains(t, dsn, "u:p@tcp(db:3306)/interviews?")
	assert.Contains(t, dsn, "parseTime=True")
	assert.Contains(t, dsn, "timeout=10s")

	cfg.DSN = "root@tcp(localhost)/x"
	assert.Equal(t, "root@tcp(localhost)/x", buildDSN(cfg))
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, gormLogLevel(1))
	assert.Equal(t, gormlogger.Error, gormLogLevel(2))
	assert.Equal(t, gormlogger.Warn, gormLogLevel(3))
	assert.Equal(t, gormlogger.Info, gormLogLevel(4))
	assert.Equal(t, gormlogger.Info, gormLogLevel(0))
}

// TestSessionModelRoundTrip 行模型与领域模型之间转换不丢字段
func TestSessionModelRoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	sess := &types.Session{
		ID:            "s-1",
		CandidateName: "Ada",
		ProfileText:   "Go developer",
		Intro:         "hello",
		Status:        types.StatusInProgress,
		Score:         12.5,
		CreatedAt:     created,
	}
	row := sessionToModel(sess)
	row.Turns = []models.InterviewTurn{
		{TurnID: 7, SessionID: "s-1", Seq: 1, Role: "interviewer", Content: "Q1", CreatedAt: created},
		{TurnID: 8, SessionID: "s-1", Seq: 2, Role: "candidate", Content: "A1", CreatedAt: created},
	}

	got := sessionFromModel(&row)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.CandidateName, got.CandidateName)
	assert.Equal(t, sess.Score, got.Score)
	assert.Equal(t, types.StatusInProgress, got.Status)
	assert.Len(t, got.Turns, 2)
	assert.Equal(t, types.RoleCandidate, got.Turns[1].Role)
	assert.Equal(t, uint64(8), got.Turns[1].ID)
}

// TestJobModelPlaceholderExternalID 没有外部ID的岗位读回时外部ID为空
func TestJobModelPlaceholderExternalID(t *testing.T) {
	row := models.JobPosting{JobID: "j-1", Source: "manual"}
	applyJobPosting(&row, types.JobInput{Source: "manual", Title: "Go", Description: "desc"})
	row.ExternalID = row.JobID

	rec := jobFromModel(&row)
	assert.Equal(t, "", rec.ExternalID)
	assert.Equal(t, "Go", rec.Title)

	row.ExternalID = "ext-9"
	assert.Equal(t, "ext-9", jobFromModel(&row).ExternalID)
}

func TestMatchToModel(t *testing.T) {
	row := matchToModel(types.MatchRecord{JobID: "j-1", Similarity: 0.9})
	assert.Nil(t, row.SessionID)
	assert.Nil(t, row.Reason)
	assert.False(t, row.CreatedAt.IsZero())

	row = matchToModel(types.MatchRecord{SessionID: "s-1", JobID: "j-1"})
	if assert.NotNil(t, row.SessionID) {
		assert.Equal(t, "s-1", *row.SessionID)
	}
}

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "transcripts/s-1.json", TranscriptObjectKey("s-1"))
	assert.Equal(t, "resume/r-1/original.pdf", ResumeObjectKey("r-1", ".PDF"))
	assert.Equal(t, "application/pdf", getContentType(".PDF"))
	assert.Equal(t, "application/octet-stream", getContentType(".bin"))
}

func TestPointIDDeterministic(t *testing.T) {
	assert.Equal(t, PointID("job-1"), PointID("job-1"))
	assert.NotEqual(t, PointID("job-1"), PointID("job-2"))
}
