package interview

import (
	"fmt"
	"strings"

	"ai-interviewer/internal/types"
)

// 发送给模型的提示词模板，模型输出统一为英文
const (
	openingPromptTemplate = `You are an experienced technical interviewer starting a live interview.
The candidate's resume screening score is %s out of 100.

Candidate profile:
%s

Ask ONE opening interview question tailored to this profile.
Reply with the question only, on a single line, without numbering.`

	followUpPromptTemplate = `You are an experienced technical interviewer in the middle of a live interview.

Recent questions you asked:
%s

The candidate's last answer:
%s

Ask ONE follow-up question that builds on the answer and does not repeat any earlier question.
Reply with the question only, on a single line, without numbering.`

	avoidQuestionsTemplate = `

These questions were already asked and must not be repeated:
%s`

	rubricPromptTemplate = `You are grading one interview answer against this rubric:
clarity, coherence, confidence and technical depth.
Give a single score from 0 to 20 and one sentence of feedback.

Question: %s
Answer: %s

Respond with JSON only: {"score": <0-20>, "feedback": "<one sentence>"}`

	detailedPromptTemplate = `You are grading one interview answer. Score each dimension independently from 0 to 20:
clarity, coherence, confidence, technical_depth, engagement.

Question: %s
Answer: %s

Respond with JSON only:
{"clarity": <0-20>, "coherence": <0-20>, "confidence": <0-20>, "technical_depth": <0-20>, "engagement": <0-20>, "feedback": "<two sentences>"}`

	analysisPromptTemplate = `Analyze the following resume and:
1. Rate the candidate on a scale from 0 to 100 based on technical skills, clarity, and experience.
2. Write a concise and friendly 2-sentence introduction as if you were introducing the candidate in an interview.

Respond with JSON only: {"score": <0-100>, "intro": "<two sentences>"}

Resume:
%s`

	summaryPromptTemplate = `You are summarizing a finished interview.
Resume screening score: %s out of 100.

Candidate profile:
%s

Transcript:
%s

Write a short overall summary and list the candidate's strengths and weaknesses.
Respond with JSON only: {"summary": "<paragraph>", "strengths": ["..."], "weaknesses": ["..."]}`

	questionsPromptTemplate = `You are an experienced technical interviewer.
Read this resume content and generate 5 professional, domain-relevant interview questions, one per line.

Resume:
%s`
)

// OpeningPrompt 第一问的提示词
func OpeningPrompt(profileText string, score float64) string {
	profile := strings.TrimSpace(profileText)
	if profile == "" {
		profile = "(no profile provided)"
	}
	return fmt.Sprintf(openingPromptTemplate, formatScore(score), profile)
}

// FollowUpPrompt 追问的提示词，recent 为最近几个问题，按提问顺序
func FollowUpPrompt(recent []string, lastAnswer string) string {
	answer := strings.TrimSpace(lastAnswer)
	if answer == "" {
		answer = "(no answer given)"
	}
	return fmt.Sprintf(followUpPromptTemplate, bulletList(recent), answer)
}

// withAvoidList 重新生成时附加完整的已提问列表
func withAvoidList(prompt string, asked []string) string {
	if len(asked) == 0 {
		return prompt
	}
	return prompt + fmt.Sprintf(avoidQuestionsTemplate, bulletList(asked))
}

// RubricPrompt 单一分数评估
func RubricPrompt(question, answer string) string {
	return fmt.Sprintf(rubricPromptTemplate, strings.TrimSpace(question), strings.TrimSpace(answer))
}

// DetailedPrompt 五维评估
func DetailedPrompt(question, answer string) string {
	return fmt.Sprintf(detailedPromptTemplate, strings.TrimSpace(question), strings.TrimSpace(answer))
}

// AnalysisPrompt 简历初评
func AnalysisPrompt(profileText string) string {
	return fmt.Sprintf(analysisPromptTemplate, strings.TrimSpace(profileText))
}

// SummaryPrompt 面试总结
func SummaryPrompt(profileText string, score float64, pairs []types.QA) string {
	var b strings.Builder
	for i, qa := range pairs {
		answer := qa.Answer
		if answer == "" {
			answer = "(no answer)"
		}
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, qa.Question, i+1, answer)
	}
	transcript := strings.TrimSpace(b.String())
	if transcript == "" {
		transcript = "(empty)"
	}
	profile := strings.TrimSpace(profileText)
	if profile == "" {
		profile = "(no profile provided)"
	}
	return fmt.Sprintf(summaryPromptTemplate, formatScore(score), profile, transcript)
}

// QuestionsPrompt 一次性生成5个问题
func QuestionsPrompt(profileText string) string {
	return fmt.Sprintf(questionsPromptTemplate, strings.TrimSpace(profileText))
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func formatScore(score float64) string {
	if score == float64(int64(score)) {
		return fmt.Sprintf("%d", int64(score))
	}
	return fmt.Sprintf("%.1f", score)
}
