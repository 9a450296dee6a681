package constants

const (
	// DefaultCandidateName 未提供候选人姓名时使用
	DefaultCandidateName = "Candidate"

	// DefaultClosingMessage 面试结束时追加的系统消息
	DefaultClosingMessage = "Thank you for your time. That concludes the interview; we will be in touch with the next steps."

	// 岗位来源
	SourceRemoteOK = "remoteok"
	SourceMuse     = "muse"
	SourceManual   = "manual"

	// 发件箱事件类型
	EventInterviewCompleted = "interview.completed"
	EventMatchCreated       = "match.created"
)
