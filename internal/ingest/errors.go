package ingest

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrAnalysisFailed     = errors.New("简历分析服务调用失败")
	ErrValidation         = errors.New("缺少必要的提交上下文")
	ErrPersistenceFailed  = errors.New("候选人记录持久化失败")
	ErrCacheRefreshFailed = errors.New("提交后刷新会话缓存失败")
)

// IngestError 包含详细错误信息的自定义错误
type IngestError struct {
	JobID   string
	Op      string
	BaseErr error
	Detail  string
}

func (e *IngestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 岗位:%s): %s", e.BaseErr, e.Op, e.JobID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 岗位:%s)", e.BaseErr, e.Op, e.JobID)
}

func (e *IngestError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *IngestError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数

func NewAnalysisError(jobID, detail string) error {
	return &IngestError{
		JobID:   jobID,
		Op:      "analyze",
		BaseErr: ErrAnalysisFailed,
		Detail:  detail,
	}
}

func NewValidationError(detail string) error {
	return &IngestError{
		Op:      "validate",
		BaseErr: ErrValidation,
		Detail:  detail,
	}
}

func NewPersistenceError(jobID, detail string) error {
	return &IngestError{
		JobID:   jobID,
		Op:      "persist",
		BaseErr: ErrPersistenceFailed,
		Detail:  detail,
	}
}

func NewCacheRefreshError(jobID, detail string) error {
	return &IngestError{
		JobID:   jobID,
		Op:      "refresh",
		BaseErr: ErrCacheRefreshFailed,
		Detail:  detail,
	}
}
