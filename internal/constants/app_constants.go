package constants

import "time"

const (
	// CountryCallingCode 归一化电话号码时补全的国际区号
	CountryCallingCode = "55"

	// DomesticPhoneDigits 不含区号的本地号码位数
	DomesticPhoneDigits = 11
	// FullPhoneDigits 含国际区号的完整号码位数
	FullPhoneDigits = 13

	// ScoreTierHighThreshold 展示层高分档阈值（候选人表格配色）
	ScoreTierHighThreshold = 85
	// ScoreTierMediumThreshold 展示层中分档阈值
	ScoreTierMediumThreshold = 70

	// DefaultApprovalThreshold 业务上"通过筛选"的默认分数线
	// 注意: 与展示层的85分档是两个独立阈值，不要合并
	DefaultApprovalThreshold = 90

	// MaxScore 分数取值上限
	MaxScore = 100

	// RawFileMD5ExpireDuration 原始文件MD5去重记录的过期时间
	RawFileMD5ExpireDuration = 30 * 24 * time.Hour

	// ScreeningEventExchange 筛选完成事件使用的交换机
	ScreeningEventExchange = "screening.events"
	// ScreeningCompletedRoutingKey 批次筛选完成事件的路由键
	ScreeningCompletedRoutingKey = "screening.completed"
)
