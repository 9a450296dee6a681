package types

import "time"

// Role 表示对话轮次的作者
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
	RoleSystem      Role = "system"
)

// Valid 判断角色是否合法
func (r Role) Valid() bool {
	switch r {
	case RoleInterviewer, RoleCandidate, RoleSystem:
		return true
	}
	return false
}

// SessionStatus 面试会话状态
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// Turn 面试中的一条消息，创建后不可变
type Turn struct {
	ID        uint64    `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session 一次完整的面试
type Session struct {
	ID            string        `json:"id"`
	CandidateName string        `json:"candidate_name"`
	ProfileText   string        `json:"profile_text"`
	Intro         string        `json:"intro,omitempty"`
	Status        SessionStatus `json:"status"`
	Score         float64       `json:"score"`
	Turns         []Turn        `json:"turns"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Completed 会话是否已结束
func (s *Session) Completed() bool {
	return s.Status == StatusCompleted
}

// CountRole 统计指定角色的轮次数
func (s *Session) CountRole(role Role) int {
	n := 0
	for _, t := range s.Turns {
		if t.Role == role {
			n++
		}
	}
	return n
}

// Questions 按顺序返回面试官提出的全部问题
func (s *Session) Questions() []string {
	var out []string
	for _, t := range s.Turns {
		if t.Role == RoleInterviewer {
			out = append(out, t.Content)
		}
	}
	return out
}

// LastTurn 返回指定角色的最后一条消息
func (s *Session) LastTurn(role Role) (Turn, bool) {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == role {
			return s.Turns[i], true
		}
	}
	return Turn{}, false
}

// Clone 深拷贝，调用方可以随意修改返回值
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Turns = make([]Turn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	return &cp
}

// AdvanceResult Turn Controller 单次推进的结果
type AdvanceResult struct {
	Completed      bool    `json:"completed"`
	Question       *string `json:"question"`
	ClosingMessage *string `json:"message"`
}

// Evaluation 单一总分评估
type Evaluation struct {
	SubScore float64 `json:"sub_score"`
	Feedback string  `json:"feedback"`
	NewTotal float64 `json:"new_total"`
	Fallback bool    `json:"fallback"`
}

// DetailedEvaluation 五个维度的评估
type DetailedEvaluation struct {
	Clarity        float64 `json:"clarity"`
	Coherence      float64 `json:"coherence"`
	Confidence     float64 `json:"confidence"`
	TechnicalDepth float64 `json:"technical_depth"`
	Engagement     float64 `json:"engagement"`
	Average        float64 `json:"average"`
	Feedback       string  `json:"feedback"`
	Fallback       bool    `json:"fallback"`
}

// ProfileAnalysis 简历初评结果
type ProfileAnalysis struct {
	Score int    `json:"score"`
	Intro string `json:"intro"`
}

// QA 一问一答
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// InterviewSummary 面试总结
type InterviewSummary struct {
	Summary    string   `json:"summary"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

// Transcript 用于归档的完整面试记录
type Transcript struct {
	Session     *Session  `json:"session"`
	Pairs       []QA      `json:"pairs"`
	ArchivedAt  time.Time `json:"archived_at"`
	QuestionCap int       `json:"question_cap"`
}

// PairTurns 把轮次按问答配对，未回答的问题答案为空
func PairTurns(turns []Turn) []QA {
	var pairs []QA
	for _, t := range turns {
		switch t.Role {
		case RoleInterviewer:
			pairs = append(pairs, QA{Question: t.Content})
		case RoleCandidate:
			if len(pairs) > 0 && pairs[len(pairs)-1].Answer == "" {
				pairs[len(pairs)-1].Answer = t.Content
			}
		}
	}
	return pairs
}
