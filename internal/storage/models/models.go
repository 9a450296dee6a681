package models

import (
	"time"

	"gorm.io/datatypes"
)

// InterviewSession 面试会话表
type InterviewSession struct {
	SessionID     string    `gorm:"type:char(36);primaryKey"`
	CandidateName string    `gorm:"type:varchar(255);not null"`
	ProfileText   string    `gorm:"type:mediumtext"`
	Intro         string    `gorm:"type:text"`
	Status        string    `gorm:"type:varchar(20);not null;default:'in_progress';index:idx_is_status"`
	Score         float64   `gorm:"type:double;not null;default:0"`
	CreatedAt     time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_is_created_at"`
	UpdatedAt     time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Turns []InterviewTurn `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (InterviewSession) TableName() string {
	return "interview_sessions"
}

// InterviewTurn 对话轮次表，(session_id, seq) 唯一
type InterviewTurn struct {
	TurnID    uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"type:char(36);not null;uniqueIndex:idx_it_session_seq,priority:1"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_it_session_seq,priority:2"`
	Role      string    `gorm:"type:varchar(20);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (InterviewTurn) TableName() string {
	return "interview_turns"
}

// JobPosting 岗位表，同一来源的外部ID唯一
type JobPosting struct {
	JobID       string    `gorm:"type:char(36);primaryKey"`
	Source      string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_jp_source_external,priority:1"`
	ExternalID  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_jp_source_external,priority:2"`
	Title       string    `gorm:"type:varchar(255);not null"`
	Company     string    `gorm:"type:varchar(255)"`
	Location    string    `gorm:"type:varchar(255)"`
	Description string    `gorm:"type:mediumtext;not null"`
	URL         string    `gorm:"type:varchar(1024)"`
	CreatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobPosting) TableName() string {
	return "job_postings"
}

// JobMatch 匹配记录表，只追加
type JobMatch struct {
	MatchID    uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID  *string   `gorm:"type:char(36);index:idx_jm_session_id"`
	JobID      string    `gorm:"type:char(36);not null;index:idx_jm_job_id"`
	Similarity float64   `gorm:"type:double;not null"`
	Reason     *string   `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Job *JobPosting `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (JobMatch) TableName() string {
	return "job_matches"
}

// ResumeUpload 上传的简历及其解析文本
type ResumeUpload struct {
	ResumeID         string         `gorm:"type:char(36);primaryKey"`
	OriginalFilename string         `gorm:"type:varchar(255)"`
	ObjectKey        string         `gorm:"type:varchar(1024)"`
	TextContent      string         `gorm:"type:mediumtext"`
	Metadata         datatypes.JSON `gorm:"type:json"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (ResumeUpload) TableName() string {
	return "resume_uploads"
}
