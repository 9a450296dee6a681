package tracing

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultMaxLength 未单独指定时 span 属性的长度上限
const DefaultMaxLength = 200

const (
	maxStatementLength = 500
	maxKeyLength       = 100
	maxPromptLength    = 300
	maxProfileLength   = 150
	maxBodyLength      = 512
)

// TruncateString 按字符截断，保留首尾两段
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	keep := max((maxLength-3)/2, 1)
	var b strings.Builder
	b.WriteString(string(runes[:keep]))
	b.WriteString("...")
	b.WriteString(string(runes[len(runes)-keep:]))
	return b.String()
}

// MaskPII 只保留首尾字符，例如 "Alice" -> "A***e"
func MaskPII(value string) string {
	runes := []rune(value)
	switch len(runes) {
	case 0:
		return ""
	case 1:
		return "*"
	case 2:
		return string(runes[0]) + "*"
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}

// CandidateAttr 候选人姓名属性，写入前掩码
func CandidateAttr(name string) attribute.KeyValue {
	return attribute.String("candidate.name", MaskPII(name))
}

func SafeSQL(sql string) string { return TruncateString(sql, maxStatementLength) }

func SafeRedisKey(key string) string { return TruncateString(key, maxKeyLength) }

func SafePrompt(prompt string) string { return TruncateString(prompt, maxPromptLength) }

// SafeProfileText 候选人资料可能含联系方式，只保留开头和结尾的少量字符
func SafeProfileText(content string) string { return TruncateString(content, maxProfileLength) }

// SafeBody 外部服务的响应体
func SafeBody(body []byte) string { return TruncateString(string(body), maxBodyLength) }
