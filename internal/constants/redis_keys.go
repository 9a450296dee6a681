package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// InterviewModulePrefix 面试模块
	InterviewModulePrefix = "interview"
	// EmbeddingModulePrefix 向量模块
	EmbeddingModulePrefix = "embedding"
	// FeedModulePrefix 岗位源模块
	FeedModulePrefix = "feed"

	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityVector 向量实体
	EntityVector = "vector"

	// KeySessionLock 面试会话分布式锁 (STRING)
	// 格式: app:interview:lock:{sessionID}
	KeySessionLock = AppPrefix + ":" + InterviewModulePrefix + ":" + EntityLock + ":%s"

	// KeyEmbeddingVector 文本向量缓存 (HASH)
	// 格式: app:embedding:vector:{sha256(model|text)}
	KeyEmbeddingVector = AppPrefix + ":" + EmbeddingModulePrefix + ":" + EntityVector + ":%s"

	// KeyFeedLock 岗位源抓取锁，避免多个副本同时抓取 (STRING)
	// 格式: app:feed:lock:{source}
	KeyFeedLock = AppPrefix + ":" + FeedModulePrefix + ":" + EntityLock + ":%s"
)
