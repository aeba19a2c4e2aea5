package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"screening-agent-go/internal/ingest"
	"screening-agent-go/internal/logger"
	"screening-agent-go/internal/storage"
	"screening-agent-go/internal/storage/models"
)

// CreateJobRequest 创建岗位请求体
type CreateJobRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	RequiredSkills string `json:"required_skills"`
	DesiredSkills  string `json:"desired_skills"`
}

// HandleCreateJob 创建一个筛选岗位并刷新会话缓存
func (h *ScreeningHandler) HandleCreateJob(ctx context.Context, ownerID string, req *CreateJobRequest) (*models.Job, error) {
	if ownerID == "" {
		return nil, ingest.NewValidationError("未识别用户，无法创建岗位")
	}
	if req == nil || strings.TrimSpace(req.Title) == "" {
		return nil, ingest.NewValidationError("岗位名称不能为空")
	}

	job, err := h.repo.CreateJob(ctx, &models.Job{
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		RequiredSkills: req.RequiredSkills,
		DesiredSkills:  req.DesiredSkills,
		OwnerUserID:    ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("创建岗位失败: %w", err)
	}

	h.refreshAfterMutation(ctx, ownerID)
	return job, nil
}

// HandleDeleteJob 删除指定岗位。
// 候选人记录不做级联删除，保留为孤儿记录供审计；
// 删除后刷新会话缓存，岗位从统计中消失而候选人总数不变。
func (h *ScreeningHandler) HandleDeleteJob(ctx context.Context, jobID, ownerID string) error {
	if jobID == "" {
		return ingest.NewValidationError("岗位ID不能为空")
	}
	if ownerID == "" {
		return ingest.NewValidationError("未识别用户，无法删除岗位")
	}

	job, err := h.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return ingest.NewValidationError(fmt.Sprintf("岗位不存在: %s", jobID))
		}
		return fmt.Errorf("查询岗位失败: %w", err)
	}
	if job.OwnerUserID != ownerID {
		return ingest.NewValidationError("无权删除其他用户的岗位")
	}

	if err := h.repo.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("删除岗位失败: %w", err)
	}

	h.refreshAfterMutation(ctx, ownerID)
	return nil
}

// refreshAfterMutation 岗位变更后刷新会话缓存，失败只记日志
func (h *ScreeningHandler) refreshAfterMutation(ctx context.Context, ownerID string) {
	if err := h.caches.ForOwner(ownerID).Refresh(ctx, ownerID); err != nil {
		logger.Warn().Err(err).Str("owner_id", ownerID).Msg("岗位变更后的缓存刷新失败")
	}
}
