package types

import "screening-agent-go/internal/storage/models"

// FileBlob 一份待分析的简历文件内容
type FileBlob struct {
	Filename string // 原始文件名
	Data     []byte // 文件字节内容
}

// AnalysisResult 分析服务对单份简历的评估结果（瞬态，不落库）
type AnalysisResult struct {
	Name    string `json:"name"`            // 候选人姓名
	Score   *int   `json:"score"`           // 0-100评分，缺失表示未评分
	Summary string `json:"summary"`         // AI生成的简历摘要
	Phone   string `json:"phone,omitempty"` // 原始电话号码，任意格式
}

// AnalysisResponse 分析服务对整个批次的响应
type AnalysisResponse struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message,omitempty"`
	Candidates []AnalysisResult `json:"candidates,omitempty"`
}

// FailedResult 一条未能持久化的分析结果
type FailedResult struct {
	Index  int            `json:"index"`  // 在分析结果序列中的位置（从0开始）
	Result AnalysisResult `json:"result"` // 原始分析结果，调用方可据此重试
	Reason string         `json:"reason"` // 失败原因
}

// IngestionReport 一次批量提交的结果: 成功落库的候选人与失败的结果
// 部分失败是一等返回值，不是日志副作用
type IngestionReport struct {
	BatchID string             `json:"batch_id"`
	Saved   []models.Candidate `json:"saved"`
	Failed  []FailedResult     `json:"failed"`
}

// FailureCount 返回未能持久化的记录数
func (r *IngestionReport) FailureCount() int {
	return len(r.Failed)
}

// AggregateStats 全局筛选统计，按需从当前缓存重算，从不持久化
type AggregateStats struct {
	ActiveJobs         int `json:"active_jobs"`
	TotalCandidates    int `json:"total_candidates"`
	AverageScore       int `json:"average_score"`
	ApprovedCandidates int `json:"approved_candidates"`
}

// JobStats 单个岗位维度的统计
type JobStats struct {
	CandidateCount int `json:"candidate_count"`
	AverageScore   int `json:"average_score"`
}

// ScreeningCompletedEvent 批次筛选完成后发布到消息队列的事件
type ScreeningCompletedEvent struct {
	BatchID     string `json:"batch_id"`
	JobID       string `json:"job_id"`
	OwnerID     string `json:"owner_id"`
	SavedCount  int    `json:"saved_count"`
	FailedCount int    `json:"failed_count"`
	CompletedAt string `json:"completed_at"` // RFC3339
}
