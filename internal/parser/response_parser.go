package parser

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseTier 解析结果来自哪一层
type ParseTier int

const (
	// TierDefault 前两层都失败，使用默认值
	TierDefault ParseTier = iota
	// TierJSON 从回复中的 JSON 对象解析
	TierJSON
	// TierPattern 从 "label: value" 形式的文本解析
	TierPattern
)

func (t ParseTier) String() string {
	switch t {
	case TierJSON:
		return "json"
	case TierPattern:
		return "pattern"
	default:
		return "default"
	}
}

// ScoreFields 单一分数的解析结果
type ScoreFields struct {
	Score    float64
	Feedback string
}

// DetailedFields 五维分数的解析结果，维度顺序与 DimensionNames 一致
type DetailedFields struct {
	Scores   [5]float64
	Feedback string
}

// DimensionNames 详细评估的五个维度
var DimensionNames = [5]string{"clarity", "coherence", "confidence", "technical_depth", "engagement"}

var (
	numberPattern  = `(-?\d+(?:\.\d+)?)`
	labelSeparator = `[*_"'\s]*[:=\-]\s*[*_"'\s]*`
	scorePattern   = regexp.MustCompile(`(?i)\b(?:sub[ _-]?)?score` + labelSeparator + numberPattern)
	// 反馈截止到行尾或同一行里紧随的 score 标签
	feedbackPattern = regexp.MustCompile(`(?im)\bfeedback` + labelSeparator + `(.+?)\s*(?:\b(?:sub[ _-]?)?score` + labelSeparator + `|$)`)

	dimensionPatterns = [5]*regexp.Regexp{
		regexp.MustCompile(`(?i)\bclarity` + labelSeparator + numberPattern),
		regexp.MustCompile(`(?i)\bcoherence` + labelSeparator + numberPattern),
		regexp.MustCompile(`(?i)\bconfidence` + labelSeparator + numberPattern),
		regexp.MustCompile(`(?i)\btechnical[ _-]?depth` + labelSeparator + numberPattern),
		regexp.MustCompile(`(?i)\bengagement` + labelSeparator + numberPattern),
	}

	// 行首的编号/项目符号："1." "2)" "(3)" "-" "*" "•" "Q1:" "Question 2:"，
	// 编号最多两位，"2024:" 这类年份不算编号
	enumerationPattern = regexp.MustCompile(`^\s*(?:[-*•#>]+\s*|\(?\d{1,2}[.):]\s*|\(?[a-zA-Z][.)]\s+|(?i:q(?:uestion)?\s*\d*\s*[:.)])\s*)`)
	firstIntPattern    = regexp.MustCompile(`\d+`)
	numberRe           = regexp.MustCompile(numberPattern)
)

// ParseScore 三层解析单一分数：JSON -> 标签文本 -> 失败
func ParseScore(raw string) (ScoreFields, ParseTier) {
	if obj, ok := decodeJSONObject(raw); ok {
		if score, ok := lookupNumber(obj, "score", "sub_score", "subScore", "subscore"); ok {
			return ScoreFields{Score: score, Feedback: lookupString(obj, "feedback", "comment", "reason")}, TierJSON
		}
	}

	if m := scorePattern.FindStringSubmatch(raw); m != nil {
		score, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			fields := ScoreFields{Score: score}
			if fm := feedbackPattern.FindStringSubmatch(raw); fm != nil {
				fields.Feedback = cleanValue(fm[1])
			}
			return fields, TierPattern
		}
	}
	return ScoreFields{}, TierDefault
}

// ParseDetailed 三层解析五维分数，任一层必须找齐五个维度才算成功
func ParseDetailed(raw string) (DetailedFields, ParseTier) {
	if obj, ok := decodeJSONObject(raw); ok {
		var fields DetailedFields
		complete := true
		for i, name := range DimensionNames {
			v, ok := lookupNumber(obj, dimensionKeys(name)...)
			if !ok {
				complete = false
				break
			}
			fields.Scores[i] = v
		}
		if complete {
			fields.Feedback = lookupString(obj, "feedback", "comment", "summary")
			return fields, TierJSON
		}
	}

	var fields DetailedFields
	for i, re := range dimensionPatterns {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			return DetailedFields{}, TierDefault
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return DetailedFields{}, TierDefault
		}
		fields.Scores[i] = v
	}
	if fm := feedbackPattern.FindStringSubmatch(raw); fm != nil {
		fields.Feedback = cleanValue(fm[1])
	}
	return fields, TierPattern
}

// ParseAnalysis 解析简历初评：JSON {"score","intro"}，否则逐行扫描，
// 提到 score 或 % 的行给出分数，其余行拼成介绍。
func ParseAnalysis(raw string) (score int, intro string, found bool) {
	if obj, ok := decodeJSONObject(raw); ok {
		if v, ok := lookupNumber(obj, "score", "rating"); ok {
			return int(math.Round(v)), lookupString(obj, "intro", "introduction"), true
		}
	}

	var introParts []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if !found && (strings.Contains(lower, "score") || strings.Contains(trimmed, "%")) {
			if digits := firstIntPattern.FindString(trimmed); digits != "" {
				if n, err := strconv.Atoi(digits); err == nil {
					score, found = n, true
					continue
				}
			}
		}
		introParts = append(introParts, cleanValue(trimmed))
	}
	return score, strings.Join(introParts, " "), found
}

// SummaryFields 面试总结的解析结果
type SummaryFields struct {
	Summary    string
	Strengths  []string
	Weaknesses []string
}

// ParseSummary 解析面试总结，没有 JSON 时整段文本作为总结
func ParseSummary(raw string) SummaryFields {
	if obj, ok := decodeJSONObject(raw); ok {
		fields := SummaryFields{
			Summary:    lookupString(obj, "summary", "overall"),
			Strengths:  lookupStrings(obj, "strengths"),
			Weaknesses: lookupStrings(obj, "weaknesses", "areas_for_improvement"),
		}
		if fields.Summary != "" || len(fields.Strengths) > 0 || len(fields.Weaknesses) > 0 {
			return fields
		}
	}
	return SummaryFields{Summary: strings.TrimSpace(raw)}
}

// ExtractQuestion 取第一行非空文本并去掉编号前缀
func ExtractQuestion(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		if q := StripEnumeration(line); q != "" {
			return q
		}
	}
	return ""
}

// ExtractQuestions 每行一个问题，去掉编号后最多返回 limit 个
func ExtractQuestions(raw string, limit int) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if q := StripEnumeration(line); q != "" {
			out = append(out, q)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// StripEnumeration 反复去掉行首的编号、项目符号和 markdown 强调
func StripEnumeration(line string) string {
	s := strings.TrimSpace(line)
	for {
		next := strings.TrimSpace(enumerationPattern.ReplaceAllString(s, ""))
		next = strings.TrimSpace(strings.Trim(next, "*_`"))
		if next == s {
			break
		}
		s = next
	}
	return strings.Trim(s, `"“”`)
}

// ExtractJSONObject 返回文本中第一个括号平衡的 JSON 对象，字符串中的括号不计数
func ExtractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inStr:
			escaped = true
		case c == '"':
			inStr = !inStr
		case c == '{' && !inStr:
			level++
		case c == '}' && !inStr:
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 把字符串字面量内部未转义的双引号改写成 \"。
// 判断依据：引号后的下一个非空白字符是 : , ] } 之一时才是字符串结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j >= len(src) || src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}' {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString(`\"`)
				}
			}
			escaped = false
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			escaped = false
		}
	}
	return b.String()
}

// decodeJSONObject 提取并解码回复中的 JSON 对象，先原样解码，失败后清洗引号再试
func decodeJSONObject(raw string) (map[string]any, bool) {
	candidate := ExtractJSONObject(raw)
	if candidate == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return obj, true
	}
	if err := json.Unmarshal([]byte(sanitizeJSON(candidate)), &obj); err == nil {
		return obj, true
	}
	return nil, false
}

func dimensionKeys(name string) []string {
	if name == "technical_depth" {
		return []string{"technical_depth", "technicalDepth", "technical depth", "depth"}
	}
	return []string{name}
}

// lookupNumber 按顺序查找键，大小写不敏感，接受数字或数字字符串
func lookupNumber(obj map[string]any, keys ...string) (float64, bool) {
	v, ok := lookup(obj, keys...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		if m := numberRe.FindString(n); m != "" {
			f, err := strconv.ParseFloat(m, 64)
			return f, err == nil
		}
	}
	return 0, false
}

func lookupString(obj map[string]any, keys ...string) string {
	v, ok := lookup(obj, keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case []any:
		return strings.Join(toStrings(s), " ")
	}
	return ""
}

func lookupStrings(obj map[string]any, keys ...string) []string {
	v, ok := lookup(obj, keys...)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []any:
		return toStrings(s)
	case string:
		if s = strings.TrimSpace(s); s != "" {
			return []string{s}
		}
	}
	return nil
}

func lookup(obj map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			return v, true
		}
	}
	for _, key := range keys {
		for k, v := range obj {
			if strings.EqualFold(k, key) {
				return v, true
			}
		}
	}
	return nil, false
}

func toStrings(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func cleanValue(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `*_"'`))
}
