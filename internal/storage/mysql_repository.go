package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ai-interviewer/internal/constants"
	"ai-interviewer/internal/matching"
	"ai-interviewer/internal/session"
	"ai-interviewer/internal/storage/models"
	"ai-interviewer/internal/types"
)

var (
	_ session.Repository       = (*MySQL)(nil)
	_ matching.JobRepository   = (*MySQL)(nil)
	_ matching.MatchRepository = (*MySQL)(nil)
)

// CreateSession 写入新会话
func (m *MySQL) CreateSession(ctx context.Context, s *types.Session) error {
	row := sessionToModel(s)
	return m.db.WithContext(ctx).Create(&row).Error
}

// GetSession 读取会话及按 seq 排序的全部轮次
func (m *MySQL) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var row models.InterviewSession
	err := m.db.WithContext(ctx).
		Preload("Turns", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	return sessionFromModel(&row), nil
}

// AppendTurn 在事务中锁定会话行，分配下一个 seq，应用分数和状态修改并写入事件的发件箱消息。
// 未配置投递目标的事件类型不写发件箱。
func (m *MySQL) AppendTurn(ctx context.Context, sessionID string, turn *types.Turn, mut session.Mutation) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.AppendTurn", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.String("turn.role", string(turn.Role)))

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess models.InterviewSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("session_id", "score", "status").
			First(&sess, "session_id = ?", sessionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("锁定会话失败: %w", err)
		}

		var count int64
		if err := tx.Model(&models.InterviewTurn{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return fmt.Errorf("统计轮次失败: %w", err)
		}

		row := models.InterviewTurn{
			SessionID: sessionID,
			Seq:       int(count) + 1,
			Role:      string(turn.Role),
			Content:   turn.Content,
			CreatedAt: turn.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("写入轮次失败: %w", err)
		}

		updates := map[string]interface{}{}
		if mut.ScoreDelta != 0 {
			updates["score"] = gorm.Expr("score + ?", mut.ScoreDelta)
		}
		if mut.Status != "" {
			updates["status"] = string(mut.Status)
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.InterviewSession{}).Where("session_id = ?", sessionID).Updates(updates).Error; err != nil {
				return fmt.Errorf("更新会话失败: %w", err)
			}
		}
		for _, ev := range mut.Events {
			route, ok := m.routes[ev.Type]
			if !ok {
				continue
			}
			if err := m.writeOutbox(tx, ev.Type, ev.AggregateID, route, ev.Payload); err != nil {
				return err
			}
		}

		turn.ID = row.TurnID
		turn.SessionID = sessionID
		turn.Seq = row.Seq
		return nil
	})
}

// UpsertJob 按 (source, external_id) 更新或新建岗位
func (m *MySQL) UpsertJob(ctx context.Context, in types.JobInput) (*types.JobRecord, error) {
	var out models.JobPosting
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ExternalID != "" {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&out, "source = ? AND external_id = ?", in.Source, in.ExternalID).Error
			if err == nil {
				applyJobPosting(&out, in)
				return tx.Save(&out).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("生成UUIDv7失败: %w", err)
		}
		out = models.JobPosting{JobID: id.String()}
		applyJobPosting(&out, in)
		if out.ExternalID == "" {
			// 没有外部ID的岗位用自身ID占位，保证唯一索引成立
			out.ExternalID = out.JobID
		}
		return tx.Create(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("保存岗位失败: %w", err)
	}
	rec := jobFromModel(&out)
	return &rec, nil
}

// GetJobs 批量读取岗位，不存在的 id 被忽略
func (m *MySQL) GetJobs(ctx context.Context, ids []string) (map[string]types.JobRecord, error) {
	out := make(map[string]types.JobRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.JobPosting
	if err := m.db.WithContext(ctx).Where("job_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	for i := range rows {
		out[rows[i].JobID] = jobFromModel(&rows[i])
	}
	return out, nil
}

// SaveMatches 在同一事务中写入匹配记录和一条 match.created 发件箱消息
func (m *MySQL) SaveMatches(ctx context.Context, records []types.MatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]models.JobMatch, len(records))
	for i, r := range records {
		rows[i] = matchToModel(r)
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("写入匹配记录失败: %w", err)
		}
		route, ok := m.routes[constants.EventMatchCreated]
		if !ok {
			return nil
		}
		aggregate := records[0].SessionID
		if aggregate == "" {
			aggregate = records[0].JobID
		}
		return m.writeOutbox(tx, constants.EventMatchCreated, aggregate, route, map[string]any{
			"session_id": records[0].SessionID,
			"matches":    records,
		})
	})
}

func (m *MySQL) writeOutbox(tx *gorm.DB, eventType, aggregateID string, route eventRoute, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	msg := models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        eventType,
		Payload:          string(body),
		TargetExchange:   route.exchange,
		TargetRoutingKey: route.routingKey,
		Status:           models.OutboxStatusPending,
	}
	if err := tx.Create(&msg).Error; err != nil {
		return fmt.Errorf("写入发件箱失败: %w", err)
	}
	return nil
}

// SaveResume 保存上传简历的解析结果
func (m *MySQL) SaveResume(ctx context.Context, r *types.Resume, metadata map[string]any) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("序列化简历元数据失败: %w", err)
	}
	row := models.ResumeUpload{
		ResumeID:         r.ID,
		OriginalFilename: r.Filename,
		ObjectKey:        r.ObjectKey,
		TextContent:      r.TextContent,
		Metadata:         datatypes.JSON(meta),
		CreatedAt:        r.CreatedAt,
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resume_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"object_key", "text_content", "metadata"}),
	}).Create(&row).Error
}

func sessionToModel(s *types.Session) models.InterviewSession {
	return models.InterviewSession{
		SessionID:     s.ID,
		CandidateName: s.CandidateName,
		ProfileText:   s.ProfileText,
		Intro:         s.Intro,
		Status:        string(s.Status),
		Score:         s.Score,
		CreatedAt:     s.CreatedAt,
	}
}

func sessionFromModel(row *models.InterviewSession) *types.Session {
	s := &types.Session{
		ID:            row.SessionID,
		CandidateName: row.CandidateName,
		ProfileText:   row.ProfileText,
		Intro:         row.Intro,
		Status:        types.SessionStatus(row.Status),
		Score:         row.Score,
		Turns:         make([]types.Turn, 0, len(row.Turns)),
		CreatedAt:     row.CreatedAt.UTC(),
	}
	for _, t := range row.Turns {
		s.Turns = append(s.Turns, types.Turn{
			ID:        t.TurnID,
			SessionID: t.SessionID,
			Seq:       t.Seq,
			Role:      types.Role(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt.UTC(),
		})
	}
	return s
}

func applyJobPosting(row *models.JobPosting, in types.JobInput) {
	row.Source = in.Source
	if in.ExternalID != "" {
		row.ExternalID = in.ExternalID
	}
	row.Title = in.Title
	row.Company = in.Company
	row.Location = in.Location
	row.Description = in.Description
	row.URL = in.URL
}

func jobFromModel(row *models.JobPosting) types.JobRecord {
	rec := types.JobRecord{
		ID:          row.JobID,
		Source:      row.Source,
		ExternalID:  row.ExternalID,
		Title:       row.Title,
		Company:     row.Company,
		Location:    row.Location,
		Description: row.Description,
		URL:         row.URL,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if rec.ExternalID == rec.ID {
		rec.ExternalID = ""
	}
	return rec
}

func matchToModel(r types.MatchRecord) models.JobMatch {
	row := models.JobMatch{
		JobID:      r.JobID,
		Similarity: r.Similarity,
		Reason:     r.Reason,
		CreatedAt:  r.CreatedAt,
	}
	if r.SessionID != "" {
		sid := r.SessionID
		row.SessionID = &sid
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row
}
