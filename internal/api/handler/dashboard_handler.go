package handler

import (
	"context"
	"fmt"
	"time"

	"screening-agent-go/internal/screening"
	"screening-agent-go/internal/storage/models"
	"screening-agent-go/internal/types"
)

// CandidateView 候选人列表项，面向展示层
type CandidateView struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Score       *int   `json:"score"`
	Tier        string `json:"tier"`
	Summary     string `json:"summary"`
	Contact     string `json:"contact,omitempty"` // 标准化电话，缺失时省略
	ScreenedAt  string `json:"screened_at"`
}

// JobStatsView 仪表盘上单个岗位的统计行
type JobStatsView struct {
	JobID          string `json:"job_id"`
	Title          string `json:"title"`
	CandidateCount int    `json:"candidate_count"`
	AverageScore   int    `json:"average_score"`
}

// DashboardStatsResponse 仪表盘聚合统计响应
type DashboardStatsResponse struct {
	Stats       types.AggregateStats `json:"stats"`
	Jobs        []JobStatsView       `json:"jobs"`
	RefreshedAt string               `json:"refreshed_at,omitempty"`
}

// HandleDashboardStats 返回当前用户的聚合统计: 全局指标 + 逐岗位统计行。
// 统计基于会话缓存快照计算，从未刷新过时先做一次刷新。
func (h *ScreeningHandler) HandleDashboardStats(ctx context.Context, ownerID string) (*DashboardStatsResponse, error) {
	jobs, candidates, refreshedAt, err := h.ownerSnapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	resp := &DashboardStatsResponse{
		Stats: screening.ComputeGlobalStatsAt(jobs, candidates, h.cfg.Screening.ApprovalThreshold),
		Jobs:  make([]JobStatsView, 0, len(jobs)),
	}
	for _, job := range jobs {
		stats := screening.ComputeJobStats(job.JobID, candidates)
		resp.Jobs = append(resp.Jobs, JobStatsView{
			JobID:          job.JobID,
			Title:          job.Title,
			CandidateCount: stats.CandidateCount,
			AverageScore:   stats.AverageScore,
		})
	}
	// Redis中的刷新时间戳跨实例共享，比本实例的更新时以它为准
	if h.session != nil {
		if at, err := h.session.GetOwnerLastRefresh(ctx, ownerID); err == nil && at.After(refreshedAt) {
			refreshedAt = at
		}
	}
	if !refreshedAt.IsZero() {
		resp.RefreshedAt = refreshedAt.Format(time.RFC3339)
	}
	return resp, nil
}

// HandleListCandidates 返回指定岗位下的候选人列表，按筛选时间倒序
func (h *ScreeningHandler) HandleListCandidates(ctx context.Context, jobID string) ([]CandidateView, error) {
	if jobID == "" {
		return nil, fmt.Errorf("岗位ID不能为空")
	}

	candidates, err := h.repo.ListCandidatesByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("查询岗位候选人失败: %w", err)
	}

	views := make([]CandidateView, 0, len(candidates))
	for i := range candidates {
		views = append(views, newCandidateView(&candidates[i]))
	}
	return views, nil
}

// HandleApprovedCandidates 返回当前用户所有达到录用线的候选人
func (h *ScreeningHandler) HandleApprovedCandidates(ctx context.Context, ownerID string) ([]CandidateView, error) {
	_, candidates, _, err := h.ownerSnapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	views := make([]CandidateView, 0)
	for i := range candidates {
		if screening.IsApprovedAt(screening.ScoreOrZero(candidates[i].Score), h.cfg.Screening.ApprovalThreshold) {
			views = append(views, newCandidateView(&candidates[i]))
		}
	}
	return views, nil
}

// ownerSnapshot 返回当前用户缓存快照，缓存为空时先刷新一次
func (h *ScreeningHandler) ownerSnapshot(ctx context.Context, ownerID string) ([]models.Job, []models.Candidate, time.Time, error) {
	if ownerID == "" {
		return nil, nil, time.Time{}, fmt.Errorf("未识别用户")
	}

	c := h.caches.ForOwner(ownerID)
	if c.RefreshedAt().IsZero() {
		if err := c.Refresh(ctx, ownerID); err != nil {
			return nil, nil, time.Time{}, fmt.Errorf("加载会话数据失败: %w", err)
		}
	}
	jobs, candidates := c.Snapshot()
	return jobs, candidates, c.RefreshedAt(), nil
}

func newCandidateView(c *models.Candidate) CandidateView {
	view := CandidateView{
		CandidateID: c.CandidateID,
		Name:        c.Name,
		Score:       c.Score,
		Tier:        string(screening.TierOf(screening.ScoreOrZero(c.Score))),
		Summary:     c.Summary,
		ScreenedAt:  c.ScreenedAt.Format(time.RFC3339),
	}
	if c.Phone != nil {
		view.Contact = *c.Phone
	}
	return view
}
