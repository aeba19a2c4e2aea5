package screening

import (
	"math"

	"screening-agent-go/internal/constants"
	"screening-agent-go/internal/storage/models"
	"screening-agent-go/internal/types"
)

// ComputeGlobalStats 从岗位集和候选人集计算全局筛选统计。
// 使用默认的90分通过线。纯函数，幂等，相同输入必然得到相同输出。
func ComputeGlobalStats(jobs []models.Job, candidates []models.Candidate) types.AggregateStats {
	return ComputeGlobalStatsAt(jobs, candidates, constants.DefaultApprovalThreshold)
}

// ComputeGlobalStatsAt 同 ComputeGlobalStats，但使用调用方指定的通过线。
// 平均分 = 所有候选人分数之和（缺失按0）除以候选人总数，四舍五入取整；
// 无候选人时为0。引用了不存在岗位的孤儿候选人照常计入全局统计。
func ComputeGlobalStatsAt(jobs []models.Job, candidates []models.Candidate, threshold int) types.AggregateStats {
	stats := types.AggregateStats{
		ActiveJobs:      len(jobs),
		TotalCandidates: len(candidates),
	}

	sum := 0
	for i := range candidates {
		score := ScoreOrZero(candidates[i].Score)
		sum += score
		if IsApprovedAt(score, threshold) {
			stats.ApprovedCandidates++
		}
	}
	stats.AverageScore = roundedAverage(sum, len(candidates))

	return stats
}

// ComputeJobStats 计算单个岗位维度的候选人数量与平均分。
// 只统计岗位引用集中包含该岗位ID的候选人；无匹配时两项均为0。
func ComputeJobStats(jobID string, candidates []models.Candidate) types.JobStats {
	var stats types.JobStats

	sum := 0
	for i := range candidates {
		if !refersToJob(&candidates[i], jobID) {
			continue
		}
		stats.CandidateCount++
		sum += ScoreOrZero(candidates[i].Score)
	}
	stats.AverageScore = roundedAverage(sum, stats.CandidateCount)

	return stats
}

// refersToJob 判断候选人的岗位引用集是否包含指定岗位
func refersToJob(c *models.Candidate, jobID string) bool {
	if jobID == "" {
		return false
	}
	for _, ref := range c.JobRefs() {
		if ref == jobID {
			return true
		}
	}
	return false
}

// roundedAverage 四舍五入的整数平均值，count为0时返回0
func roundedAverage(sum, count int) int {
	if count == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(count)))
}
