package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"screening-agent-go/internal/cache"
	"screening-agent-go/internal/config"
	"screening-agent-go/internal/constants"
	"screening-agent-go/internal/ingest"
	"screening-agent-go/internal/logger"
	"screening-agent-go/internal/storage"
	"screening-agent-go/internal/storage/models"
	"screening-agent-go/internal/types"
	"screening-agent-go/pkg/utils"
)

// sessionStore 会话层的Redis能力: 文件MD5去重登记与缓存刷新时间戳。
// 以接口收窄，Redis未配置时整体退化为空操作。
type sessionStore interface {
	CheckAndAddRawFileMD5(ctx context.Context, md5Hex string) (bool, error)
	RemoveRawFileMD5(ctx context.Context, md5Hex string) error
	SetOwnerLastRefresh(ctx context.Context, ownerID string, at time.Time) error
	GetOwnerLastRefresh(ctx context.Context, ownerID string) (time.Time, error)
}

// ScreeningHandler 协调简历批量提交流程:
// 去重 → 编排器提交 → 归档 → 缓存刷新 → 事件发布
type ScreeningHandler struct {
	cfg          *config.Config
	storage      *storage.Storage
	repo         ingest.CandidateRepository
	orchestrator *ingest.Orchestrator
	caches       *cache.Registry
	session      sessionStore
}

// NewScreeningHandler 创建筛选处理器
func NewScreeningHandler(
	cfg *config.Config,
	storage *storage.Storage,
	repo ingest.CandidateRepository,
	orchestrator *ingest.Orchestrator,
	caches *cache.Registry,
) *ScreeningHandler {
	h := &ScreeningHandler{
		cfg:          cfg,
		storage:      storage,
		repo:         repo,
		orchestrator: orchestrator,
		caches:       caches,
	}
	// 带类型的nil指针不能直接塞进接口，否则nil判断失效
	if storage.Redis != nil {
		h.session = storage.Redis
	}
	return h
}

// BatchUploadResponse 批量上传响应
type BatchUploadResponse struct {
	BatchID string               `json:"batch_id"`
	Saved   []models.Candidate   `json:"saved"`
	Failed  []types.FailedResult `json:"failed"`
	Skipped []string             `json:"skipped,omitempty"` // 因重复被跳过的文件名
	Message string               `json:"message"`
	Warning string               `json:"warning,omitempty"` // 非致命问题，如缓存刷新失败
}

// HandleBatchUpload 处理一批简历文件的提交。
// 分析阶段失败整体中止；单条持久化失败收集到Failed并继续；
// 缓存刷新失败降级为警告，已落库的候选人不回滚。
func (h *ScreeningHandler) HandleBatchUpload(ctx context.Context, jobID, ownerID string, files []types.FileBlob) (*BatchUploadResponse, error) {
	if jobID == "" {
		return nil, ingest.NewValidationError("未选择岗位，无法提交简历")
	}
	if ownerID == "" {
		return nil, ingest.NewValidationError("未识别用户，无法提交简历")
	}

	// 提交前确认岗位仍然存在
	if _, err := h.repo.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, ingest.NewValidationError(fmt.Sprintf("岗位不存在: %s", jobID))
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}

	// 重复文件去重: 已分析过的文件直接跳过，不重复计费
	files, skipped := h.dedupFiles(ctx, files)

	resp := &BatchUploadResponse{Skipped: skipped}

	if len(files) == 0 {
		// 全部文件都已分析过，空批次按成功处理
		resp.Message = "所有文件均已分析过，本次未提交"
		resp.Saved = []models.Candidate{}
		resp.Failed = []types.FailedResult{}
		return resp, nil
	}

	report, err := h.orchestrator.Submit(ctx, jobID, ownerID, files)
	if err != nil {
		// 分析失败可整体重试，回滚本批次的MD5登记
		h.releaseDedup(ctx, files)
		return nil, err
	}

	resp.BatchID = report.BatchID
	resp.Saved = report.Saved
	resp.Failed = report.Failed
	if report.FailureCount() > 0 {
		resp.Message = fmt.Sprintf("筛选完成，%d 条记录保存失败", report.FailureCount())
		// 失败条目对应的文件撤销MD5登记，调用方可以只重试失败部分
		h.releaseFailedDedup(ctx, files, report)
	} else {
		resp.Message = fmt.Sprintf("筛选完成，保存 %d 位候选人", len(report.Saved))
	}

	// 原始文件归档，尽力而为
	h.archiveFiles(ctx, report.BatchID, files)

	// 批次完成后刷新一次会话缓存，失败不影响已落库数据
	if err := h.caches.ForOwner(ownerID).Refresh(ctx, ownerID); err != nil {
		warn := ingest.NewCacheRefreshError(jobID, err.Error())
		logger.Warn().Err(err).Str("owner_id", ownerID).Msg("批次完成后的缓存刷新失败")
		resp.Warning = warn.Error()
	} else if h.session != nil {
		if err := h.session.SetOwnerLastRefresh(ctx, ownerID, time.Now()); err != nil {
			logger.Debug().Err(err).Msg("记录缓存刷新时间失败")
		}
	}

	h.publishCompletedEvent(ctx, report, jobID, ownerID)

	return resp, nil
}

// dedupFiles 过滤掉已分析过的文件，返回剩余文件和被跳过的文件名
func (h *ScreeningHandler) dedupFiles(ctx context.Context, files []types.FileBlob) ([]types.FileBlob, []string) {
	if h.session == nil {
		return files, nil
	}

	kept := make([]types.FileBlob, 0, len(files))
	var skipped []string
	for _, file := range files {
		md5Hex := utils.CalculateMD5(file.Data)
		exists, err := h.session.CheckAndAddRawFileMD5(ctx, md5Hex)
		if err != nil {
			// 去重是优化不是正确性要求，Redis故障时放行
			logger.Warn().Err(err).Str("filename", file.Filename).Msg("文件MD5去重检查失败，照常提交")
			kept = append(kept, file)
			continue
		}
		if exists {
			logger.Info().Str("filename", file.Filename).Str("md5", md5Hex).Msg("检测到重复文件，跳过")
			skipped = append(skipped, file.Filename)
			continue
		}
		kept = append(kept, file)
	}
	return kept, skipped
}

// releaseDedup 分析整体失败后撤销本批次的MD5登记，允许原样重试
func (h *ScreeningHandler) releaseDedup(ctx context.Context, files []types.FileBlob) {
	if h.session == nil {
		return
	}
	for _, file := range files {
		if err := h.session.RemoveRawFileMD5(ctx, utils.CalculateMD5(file.Data)); err != nil {
			logger.Debug().Err(err).Str("filename", file.Filename).Msg("撤销文件MD5登记失败")
		}
	}
}

// releaseFailedDedup 部分失败后只撤销失败条目对应文件的MD5登记。
// 结果序号与提交的文件序号一一对应（每份文件产出一条结果），
// 对不上的序号保守地不做撤销。
func (h *ScreeningHandler) releaseFailedDedup(ctx context.Context, files []types.FileBlob, report *types.IngestionReport) {
	if h.session == nil {
		return
	}
	for _, failed := range report.Failed {
		if failed.Index < 0 || failed.Index >= len(files) {
			continue
		}
		file := files[failed.Index]
		if err := h.session.RemoveRawFileMD5(ctx, utils.CalculateMD5(file.Data)); err != nil {
			logger.Debug().Err(err).Str("filename", file.Filename).Msg("撤销文件MD5登记失败")
		}
	}
}

// archiveFiles 将原始文件归档到对象存储，失败只记日志
func (h *ScreeningHandler) archiveFiles(ctx context.Context, batchID string, files []types.FileBlob) {
	if h.storage.MinIO == nil {
		return
	}
	for i, file := range files {
		if _, err := h.storage.MinIO.ArchiveResumeFile(ctx, batchID, i, file.Filename, file.Data); err != nil {
			logger.Warn().Err(err).Str("filename", file.Filename).Msg("简历原始文件归档失败")
		}
	}
}

// publishCompletedEvent 发布批次完成事件到消息队列，尽力而为
func (h *ScreeningHandler) publishCompletedEvent(ctx context.Context, report *types.IngestionReport, jobID, ownerID string) {
	if h.storage.RabbitMQ == nil {
		return
	}
	event := types.ScreeningCompletedEvent{
		BatchID:     report.BatchID,
		JobID:       jobID,
		OwnerID:     ownerID,
		SavedCount:  len(report.Saved),
		FailedCount: len(report.Failed),
		CompletedAt: time.Now().Format(time.RFC3339),
	}
	err := h.storage.RabbitMQ.PublishJSON(ctx,
		h.cfg.RabbitMQ.EventsExchange,
		constants.ScreeningCompletedRoutingKey,
		event,
		true)
	if err != nil {
		logger.Warn().Err(err).Str("batch_id", report.BatchID).Msg("发布筛选完成事件失败")
	}
}
