package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"screening-agent-go/internal/constants"
	"screening-agent-go/internal/screening"
	"screening-agent-go/internal/storage/models"
	"screening-agent-go/internal/tracing"
	"screening-agent-go/internal/types"
)

var ingestTracer = otel.Tracer("screening-agent-go/ingest")

// Analyzer 外部简历分析服务的边界接口。
// 整个批次一次性提交，换取单次网络往返。
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, jobID string, files []types.FileBlob) (*types.AnalysisResponse, error)
}

// CandidateRepository 持久化存储的边界接口
type CandidateRepository interface {
	// CreateCandidate 创建候选人记录，由存储层分配ID和筛选时间戳
	CreateCandidate(ctx context.Context, candidate *models.Candidate) (*models.Candidate, error)
	// ListCandidatesByJob 按岗位取候选人，筛选时间倒序
	ListCandidatesByJob(ctx context.Context, jobID string) ([]models.Candidate, error)
	// ListCandidatesByOwner 按用户取候选人，筛选时间倒序
	ListCandidatesByOwner(ctx context.Context, ownerID string) ([]models.Candidate, error)
	// ListJobsByOwner 按用户取岗位，创建时间倒序
	ListJobsByOwner(ctx context.Context, ownerID string) ([]models.Job, error)
	// GetJob 按ID取岗位
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	// CreateJob 创建岗位，由存储层分配ID
	CreateJob(ctx context.Context, job *models.Job) (*models.Job, error)
	// DeleteJob 删除岗位。候选人不级联删除，留作孤儿记录。
	DeleteJob(ctx context.Context, jobID string) error
}

// Orchestrator 驱动单个岗位的批量简历提交:
// 调用分析服务 → 映射为候选人记录 → 逐条持久化 → 汇报成功/部分失败。
// 不触碰会话缓存，批次完成后的刷新由调用方负责。
type Orchestrator struct {
	analyzer Analyzer
	repo     CandidateRepository
	logger   zerolog.Logger
}

// NewOrchestrator 创建摄入编排器
func NewOrchestrator(analyzer Analyzer, repo CandidateRepository, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		analyzer: analyzer,
		repo:     repo,
		logger:   logger.With().Str("component", "ingest_orchestrator").Logger(),
	}
}

// Submit 提交一批简历文件做分析并持久化结果。
//
// 分析阶段整体失败（网络错误、非成功状态、success=false）时原子失败:
// 不创建任何候选人，返回 ErrAnalysisFailed。分析成功后逐条顺序持久化，
// 单条失败记入 Failed 并继续处理后续记录，批次整体仍视为成功。
// 分数存在但超出 [0,100] 的结果不入库，同样记入 Failed。
// 分析返回零条结果是空批次成功，不是错误。
func (o *Orchestrator) Submit(ctx context.Context, jobID, ownerID string, files []types.FileBlob) (*types.IngestionReport, error) {
	if jobID == "" {
		return nil, NewValidationError("未选择岗位，无法提交简历")
	}
	if ownerID == "" {
		return nil, NewValidationError("未识别用户，无法提交简历")
	}

	batchID := uuid.NewString()
	ctx, span := ingestTracer.Start(ctx, "ingest.Submit",
		trace.WithAttributes(
			attribute.String("screening.job_id", jobID),
			attribute.String("screening.batch_id", batchID),
			attribute.Int("screening.file_count", len(files)),
		))
	defer span.End()

	startTime := time.Now()
	o.logger.Info().
		Str("batch_id", batchID).
		Str("job_id", jobID).
		Int("file_count", len(files)).
		Msg("开始批量提交简历")

	// 1. 整个批次一次网络往返提交给分析服务
	resp, err := o.analyzer.AnalyzeBatch(ctx, jobID, files)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		o.logger.Error().Err(err).Str("batch_id", batchID).Msg("分析服务调用失败，批次整体中止")
		return nil, NewAnalysisError(jobID, err.Error())
	}
	if !resp.Success {
		detail := resp.Message
		if detail == "" {
			detail = "分析服务返回失败状态"
		}
		err := NewAnalysisError(jobID, detail)
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		o.logger.Error().Str("batch_id", batchID).Str("message", resp.Message).Msg("分析服务报告失败，批次整体中止")
		return nil, err
	}

	report := &types.IngestionReport{
		BatchID: batchID,
		Saved:   make([]models.Candidate, 0, len(resp.Candidates)),
		Failed:  make([]types.FailedResult, 0),
	}

	// 2. 按分析服务返回的顺序逐条持久化。
	// 必须顺序执行: 既控制对存储的压力，也保证第N条失败可归因到第N条结果。
	for i, result := range resp.Candidates {
		// 分数越界的结果不入库，按单条失败归因后继续
		if result.Score != nil && (*result.Score < 0 || *result.Score > constants.MaxScore) {
			verr := NewValidationError(fmt.Sprintf("分数越界: %d (允许范围 0-%d)", *result.Score, constants.MaxScore))
			o.logger.Warn().
				Str("batch_id", batchID).
				Int("result_index", i).
				Str("candidate_name", tracing.MaskPII(result.Name)).
				Int("score", *result.Score).
				Msg("分析结果分数越界，拒绝入库")
			report.Failed = append(report.Failed, types.FailedResult{
				Index:  i,
				Result: result,
				Reason: verr.Error(),
			})
			continue
		}

		candidate := o.mapResult(result, jobID, ownerID)

		saved, err := o.repo.CreateCandidate(ctx, candidate)
		if err != nil {
			perr := NewPersistenceError(jobID, err.Error())
			o.logger.Warn().
				Err(err).
				Str("batch_id", batchID).
				Int("result_index", i).
				Str("candidate_name", tracing.MaskPII(result.Name)).
				Msg("单条候选人持久化失败，继续处理剩余记录")
			report.Failed = append(report.Failed, types.FailedResult{
				Index:  i,
				Result: result,
				Reason: perr.Error(),
			})
			continue
		}
		o.logger.Debug().
			Str("batch_id", batchID).
			Str("candidate_id", saved.CandidateID).
			Str("candidate_name", tracing.MaskPII(saved.Name)).
			Str("summary", tracing.SafeSummaryContent(result.Summary)).
			Msg("候选人已入库")
		report.Saved = append(report.Saved, *saved)
	}

	span.SetAttributes(
		attribute.Int("screening.saved_count", len(report.Saved)),
		attribute.Int("screening.failed_count", len(report.Failed)),
	)
	o.logger.Info().
		Str("batch_id", batchID).
		Int("saved", len(report.Saved)).
		Int("failed", len(report.Failed)).
		Dur("elapsed", time.Since(startTime)).
		Msg("批量提交完成")

	return report, nil
}

// mapResult 将一条分析结果映射为待入库的候选人记录
func (o *Orchestrator) mapResult(result types.AnalysisResult, jobID, ownerID string) *models.Candidate {
	candidate := &models.Candidate{
		Name:        result.Name,
		Score:       result.Score,
		Summary:     result.Summary,
		Phone:       screening.NormalizePhone(result.Phone),
		JobID:       jobID,
		OwnerUserID: ownerID,
	}

	if raw, err := json.Marshal(result); err == nil {
		candidate.RawAnalysisJSON = datatypes.JSON(raw)
	}

	return candidate
}
