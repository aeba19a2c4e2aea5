package screening

import "screening-agent-go/internal/constants"

// Tier 表示候选人分数的展示档位
type Tier string

const (
	// TierHigh 高分档 (>= 85)
	TierHigh Tier = "high"
	// TierMedium 中分档 (70 - 84)
	TierMedium Tier = "medium"
	// TierLow 低分档 (< 70)
	TierLow Tier = "low"
)

// TierOf 根据分数返回展示档位。
// 展示档位的85分线与"通过筛选"的90分线是两条独立的业务阈值。
func TierOf(score int) Tier {
	switch {
	case score >= constants.ScoreTierHighThreshold:
		return TierHigh
	case score >= constants.ScoreTierMediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// IsApproved 判断分数是否达到默认的通过线（90分）
func IsApproved(score int) bool {
	return IsApprovedAt(score, constants.DefaultApprovalThreshold)
}

// IsApprovedAt 判断分数是否达到指定通过线
func IsApprovedAt(score, threshold int) bool {
	return score >= threshold
}

// ScoreOrZero 缺失的分数统一按0处理，避免空值扩散
func ScoreOrZero(score *int) int {
	if score == nil {
		return 0
	}
	return *score
}
