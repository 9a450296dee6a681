package types

import "time"

// JobInput 岗位入库请求
type JobInput struct {
	Source      string `json:"source"`
	ExternalID  string `json:"external_id,omitempty"`
	Title       string `json:"title"`
	Company     string `json:"company,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

// JobRecord 岗位记录，Description 是唯一参与向量化的字段
type JobRecord struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	ExternalID  string    `json:"external_id,omitempty"`
	Title       string    `json:"title"`
	Company     string    `json:"company,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MatchRecord 一次匹配查询产生的 (session, job) 记录，只追加
type MatchRecord struct {
	ID         uint64    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	JobID      string    `json:"job_id"`
	Similarity float64   `json:"similarity"`
	Reason     *string   `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredDoc 相似度索引的查询结果
type ScoredDoc struct {
	DocID      string         `json:"doc_id"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// JobMatch 匹配结果中的单条岗位
type JobMatch struct {
	Job        JobRecord `json:"job"`
	Similarity float64   `json:"similarity"`
}

// MatchResult 匹配结果；Warning 非空表示匹配记录持久化失败，但结果本身有效
type MatchResult struct {
	SessionID string     `json:"session_id,omitempty"`
	Matches   []JobMatch `json:"matches"`
	Warning   error      `json:"-"`
}

// IngestFailure 单个岗位入库失败的原因
type IngestFailure struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id,omitempty"`
	Title      string `json:"title"`
	Reason     string `json:"reason"`
}

// IngestReport 批量入库结果
type IngestReport struct {
	Jobs    []JobRecord     `json:"jobs"`
	Skipped int             `json:"skipped"`
	Failed  []IngestFailure `json:"failed,omitempty"`
}

// Resume 上传的简历
type Resume struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	TextContent string    `json:"text_content"`
	ObjectKey   string    `json:"object_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
