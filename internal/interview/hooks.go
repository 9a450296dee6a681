package interview

import (
	"context"
	"time"

	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/session"
	"ai-interviewer/internal/types"
)

// TranscriptArchiver 保存完整的面试记录
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, t *types.Transcript) (string, error)
}

// CompletedEvent interview.completed 事件内容，与结束轮次在同一原子单元写入
type CompletedEvent struct {
	SessionID     string    `json:"session_id"`
	CandidateName string    `json:"candidate_name"`
	Score         float64   `json:"score"`
	Questions     int       `json:"questions"`
	TranscriptKey string    `json:"transcript_key,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

func completedEvent(sess *types.Session, at time.Time) session.Event {
	return session.Event{
		Type:        constants.EventInterviewCompleted,
		AggregateID: sess.ID,
		Payload: CompletedEvent{
			SessionID:     sess.ID,
			CandidateName: sess.CandidateName,
			Score:         sess.Score,
			Questions:     sess.CountRole(types.RoleInterviewer),
			CompletedAt:   at,
		},
	}
}

// ArchiveHook 面试结束后把记录归档到对象存储
func ArchiveHook(a TranscriptArchiver, questionCap int) CompletionHook {
	return func(ctx context.Context, sess *types.Session) error {
		_, err := a.ArchiveTranscript(ctx, &types.Transcript{
			Session:     sess,
			Pairs:       types.PairTurns(sess.Turns),
			ArchivedAt:  time.Now().UTC(),
			QuestionCap: questionCap,
		})
		return err
	}
}
