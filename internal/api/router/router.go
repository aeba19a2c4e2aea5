package router

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"screening-agent-go/internal/api/handler"
	"screening-agent-go/internal/ingest"
	"screening-agent-go/internal/types"
)

// OwnerIDHeader 标识当前招聘方用户的请求头
const OwnerIDHeader = "X-Owner-ID"

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, screeningHandler *handler.ScreeningHandler) {
	api := h.Group("/api/v1")

	// 批量提交简历做筛选
	api.POST("/screenings/:job_id/resumes", func(c context.Context, ctx *app.RequestContext) {
		jobID := ctx.Param("job_id")
		ownerID := ownerFrom(ctx)

		form, err := ctx.MultipartForm()
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "解析上传表单失败"})
			return
		}
		fileHeaders := form.File["files"]
		if len(fileHeaders) == 0 {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "未上传任何文件"})
			return
		}

		files := make([]types.FileBlob, 0, len(fileHeaders))
		for _, fh := range fileHeaders {
			f, err := fh.Open()
			if err != nil {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": "打开文件失败: " + fh.Filename})
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": "读取文件失败: " + fh.Filename})
				return
			}
			files = append(files, types.FileBlob{Filename: fh.Filename, Data: data})
		}

		resp, err := screeningHandler.HandleBatchUpload(c, jobID, ownerID, files)
		if err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 仪表盘聚合统计
	api.GET("/dashboard/stats", func(c context.Context, ctx *app.RequestContext) {
		resp, err := screeningHandler.HandleDashboardStats(c, ownerFrom(ctx))
		if err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 指定岗位下的候选人列表
	api.GET("/screenings/:job_id/candidates", func(c context.Context, ctx *app.RequestContext) {
		views, err := screeningHandler.HandleListCandidates(c, ctx.Param("job_id"))
		if err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"candidates": views})
	})

	// 达到录用线的候选人
	api.GET("/candidates/approved", func(c context.Context, ctx *app.RequestContext) {
		views, err := screeningHandler.HandleApprovedCandidates(c, ownerFrom(ctx))
		if err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"candidates": views})
	})

	// 创建筛选岗位
	api.POST("/screenings", func(c context.Context, ctx *app.RequestContext) {
		var req handler.CreateJobRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "解析请求体失败"})
			return
		}
		job, err := screeningHandler.HandleCreateJob(c, ownerFrom(ctx), &req)
		if err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusCreated, job)
	})

	// 删除筛选岗位，关联候选人保留
	api.DELETE("/screenings/:job_id", func(c context.Context, ctx *app.RequestContext) {
		if err := screeningHandler.HandleDeleteJob(c, ctx.Param("job_id"), ownerFrom(ctx)); err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "deleted"})
	})

	// 添加健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

func ownerFrom(ctx *app.RequestContext) string {
	return string(ctx.GetHeader(OwnerIDHeader))
}

// statusFor 业务校验错误映射到400，分析服务失败映射到422，其余按500处理
func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrValidation):
		return consts.StatusBadRequest
	case errors.Is(err, ingest.ErrAnalysisFailed):
		return consts.StatusUnprocessableEntity
	default:
		return consts.StatusInternalServerError
	}
}
