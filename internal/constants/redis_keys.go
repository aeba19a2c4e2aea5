package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// FileModulePrefix 文件模块
	FileModulePrefix = "file"
	// SessionModulePrefix 会话模块
	SessionModulePrefix = "session"

	// EntityMD5 MD5去重实体
	EntityMD5 = "md5"
	// EntityOwner 所属用户实体
	EntityOwner = "owner"

	// KeyRawFileMD5 已分析过的原始文件MD5标记 (STRING, 带TTL)
	// 格式: app:file:md5:{md5}
	KeyRawFileMD5 = AppPrefix + ":" + FileModulePrefix + ":" + EntityMD5 + ":%s"

	// KeyOwnerLastRefresh 用户缓存最近一次刷新时间 (STRING)
	// 格式: app:session:owner:{ownerID}
	KeyOwnerLastRefresh = AppPrefix + ":" + SessionModulePrefix + ":" + EntityOwner + ":%s"
)
