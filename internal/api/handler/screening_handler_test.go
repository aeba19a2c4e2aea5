package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screening-agent-go/internal/cache"
	"screening-agent-go/internal/config"
	"screening-agent-go/internal/ingest"
	"screening-agent-go/internal/storage"
	"screening-agent-go/internal/storage/models"
	"screening-agent-go/internal/types"
	"screening-agent-go/pkg/utils"
)

// stubRepo 内存版候选人仓库，行为与存储层一致:
// 删除岗位不级联删除候选人
type stubRepo struct {
	mu          sync.Mutex
	jobs        map[string]*models.Job
	candidates  []models.Candidate
	createCalls int
	failAtCall  int // 第N次CreateCandidate失败，0表示不失败
	nextID      int
}

func newStubRepo() *stubRepo {
	return &stubRepo{jobs: make(map[string]*models.Job)}
}

func (r *stubRepo) seedJob(jobID, title, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobID] = &models.Job{JobID: jobID, Title: title, OwnerUserID: ownerID, CreatedAt: time.Now()}
}

func (r *stubRepo) CreateCandidate(ctx context.Context, candidate *models.Candidate) (*models.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.createCalls++
	if r.failAtCall > 0 && r.createCalls == r.failAtCall {
		return nil, errors.New("模拟数据库写入失败")
	}

	r.nextID++
	saved := *candidate
	saved.CandidateID = fmt.Sprintf("cand-%d", r.nextID)
	if saved.ScreenedAt.IsZero() {
		saved.ScreenedAt = time.Now()
	}
	r.candidates = append(r.candidates, saved)
	return &saved, nil
}

func (r *stubRepo) ListCandidatesByJob(ctx context.Context, jobID string) ([]models.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Candidate
	for _, c := range r.candidates {
		if c.JobID == jobID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *stubRepo) ListCandidatesByOwner(ctx context.Context, ownerID string) ([]models.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Candidate
	for _, c := range r.candidates {
		if c.OwnerUserID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *stubRepo) ListJobsByOwner(ctx context.Context, ownerID string) ([]models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Job
	for _, job := range r.jobs {
		if job.OwnerUserID == ownerID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *stubRepo) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *stubRepo) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	saved := *job
	saved.JobID = fmt.Sprintf("job-%d", r.nextID)
	saved.CreatedAt = time.Now()
	r.jobs[saved.JobID] = &saved
	copied := saved
	return &copied, nil
}

func (r *stubRepo) DeleteJob(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[jobID]; !ok {
		return storage.ErrRecordNotFound
	}
	// 候选人保留为孤儿记录
	delete(r.jobs, jobID)
	return nil
}

// fakeSession 内存版会话存储，模拟Redis的MD5去重与刷新时间戳
type fakeSession struct {
	mu          sync.Mutex
	registered  map[string]bool
	removed     []string
	lastRefresh map[string]time.Time
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		registered:  make(map[string]bool),
		lastRefresh: make(map[string]time.Time),
	}
}

func (s *fakeSession) CheckAndAddRawFileMD5(ctx context.Context, md5Hex string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registered[md5Hex] {
		return true, nil
	}
	s.registered[md5Hex] = true
	return false, nil
}

func (s *fakeSession) RemoveRawFileMD5(ctx context.Context, md5Hex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registered, md5Hex)
	s.removed = append(s.removed, md5Hex)
	return nil
}

func (s *fakeSession) SetOwnerLastRefresh(ctx context.Context, ownerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRefresh[ownerID] = at
	return nil
}

func (s *fakeSession) GetOwnerLastRefresh(ctx context.Context, ownerID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastRefresh[ownerID]
	if !ok {
		return time.Time{}, storage.ErrNotFound
	}
	return at, nil
}

// stubAnalyzer 固定返回预设响应的分析服务
type stubAnalyzer struct {
	resp      *types.AnalysisResponse
	err       error
	callCount int
}

func (a *stubAnalyzer) AnalyzeBatch(ctx context.Context, jobID string, files []types.FileBlob) (*types.AnalysisResponse, error) {
	a.callCount++
	if a.err != nil {
		return nil, a.err
	}
	return a.resp, nil
}

func newTestHandler(repo *stubRepo, analyzer *stubAnalyzer) *ScreeningHandler {
	cfg := &config.Config{
		Screening: config.ScreeningConfig{ApprovalThreshold: 90},
	}
	nop := zerolog.Nop()
	orchestrator := ingest.NewOrchestrator(analyzer, repo, nop)
	return NewScreeningHandler(cfg, &storage.Storage{}, repo, orchestrator, cache.NewRegistry(repo, nop))
}

func TestHandleBatchUpload_FullFlow(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-backend", "后端工程师", "owner-1")

	analyzer := &stubAnalyzer{
		resp: &types.AnalysisResponse{
			Success: true,
			Candidates: []types.AnalysisResult{
				{Name: "Ana", Score: utils.IntPtr(95), Summary: "资深后端", Phone: "(11) 98888-7777"},
				{Name: "Bruno", Score: utils.IntPtr(60), Summary: "初级后端"},
			},
		},
	}
	h := newTestHandler(repo, analyzer)

	files := []types.FileBlob{
		{Filename: "ana.pdf", Data: []byte("pdf-a")},
		{Filename: "bruno.pdf", Data: []byte("pdf-b")},
	}
	resp, err := h.HandleBatchUpload(context.Background(), "job-backend", "owner-1", files)
	require.NoError(t, err)
	require.Len(t, resp.Saved, 2)
	assert.Empty(t, resp.Failed)
	assert.NotEmpty(t, resp.BatchID)
	assert.Contains(t, resp.Message, "保存 2 位候选人")

	// 批次完成后缓存已刷新，仪表盘直接出统计
	stats, err := h.HandleDashboardStats(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stats.ActiveJobs)
	assert.Equal(t, 2, stats.Stats.TotalCandidates)
	assert.Equal(t, 78, stats.Stats.AverageScore) // (95+60)/2 = 77.5 四舍五入
	assert.Equal(t, 1, stats.Stats.ApprovedCandidates)

	require.Len(t, stats.Jobs, 1)
	assert.Equal(t, "job-backend", stats.Jobs[0].JobID)
	assert.Equal(t, 2, stats.Jobs[0].CandidateCount)
	assert.Equal(t, 78, stats.Jobs[0].AverageScore)
}

func TestHandleBatchUpload_JobMissing(t *testing.T) {
	h := newTestHandler(newStubRepo(), &stubAnalyzer{})

	_, err := h.HandleBatchUpload(context.Background(), "ghost-job", "owner-1", []types.FileBlob{
		{Filename: "x.pdf", Data: []byte("x")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrValidation)
}

func TestHandleBatchUpload_MissingContext(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	analyzer := &stubAnalyzer{}
	h := newTestHandler(repo, analyzer)

	_, err := h.HandleBatchUpload(context.Background(), "", "owner-1", nil)
	assert.ErrorIs(t, err, ingest.ErrValidation)

	_, err = h.HandleBatchUpload(context.Background(), "job-1", "", nil)
	assert.ErrorIs(t, err, ingest.ErrValidation)

	// 校验失败不应触达分析服务
	assert.Equal(t, 0, analyzer.callCount)
}

func TestHandleBatchUpload_AnalysisFailureIsAtomic(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	analyzer := &stubAnalyzer{err: errors.New("connection refused")}
	h := newTestHandler(repo, analyzer)

	_, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", []types.FileBlob{
		{Filename: "a.pdf", Data: []byte("a")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrAnalysisFailed)
	assert.Equal(t, 0, repo.createCalls)
}

func TestHandleBatchUpload_PartialPersistenceFailure(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	repo.failAtCall = 2
	analyzer := &stubAnalyzer{
		resp: &types.AnalysisResponse{
			Success: true,
			Candidates: []types.AnalysisResult{
				{Name: "A", Score: utils.IntPtr(80)},
				{Name: "B", Score: utils.IntPtr(70)},
				{Name: "C", Score: utils.IntPtr(90)},
			},
		},
	}
	h := newTestHandler(repo, analyzer)

	resp, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", []types.FileBlob{
		{Filename: "a.pdf", Data: []byte("a")},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Saved, 2)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, 1, resp.Failed[0].Index)
	assert.Contains(t, resp.Message, "1 条记录保存失败")
}

func TestHandleBatchUpload_DuplicateFilesSkipped(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	analyzer := &stubAnalyzer{
		resp: &types.AnalysisResponse{
			Success: true,
			Candidates: []types.AnalysisResult{
				{Name: "Novo", Score: utils.IntPtr(75)},
			},
		},
	}
	h := newTestHandler(repo, analyzer)
	session := newFakeSession()
	h.session = session

	// 第一个文件此前已提交分析过
	session.registered[utils.CalculateMD5([]byte("pdf-velho"))] = true

	resp, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", []types.FileBlob{
		{Filename: "velho.pdf", Data: []byte("pdf-velho")},
		{Filename: "novo.pdf", Data: []byte("pdf-novo")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"velho.pdf"}, resp.Skipped)
	assert.Len(t, resp.Saved, 1)
}

func TestHandleBatchUpload_AllDuplicatesIsEmptySuccess(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	analyzer := &stubAnalyzer{}
	h := newTestHandler(repo, analyzer)
	session := newFakeSession()
	h.session = session

	session.registered[utils.CalculateMD5([]byte("pdf-a"))] = true

	resp, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", []types.FileBlob{
		{Filename: "a.pdf", Data: []byte("pdf-a")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Saved)
	assert.Equal(t, []string{"a.pdf"}, resp.Skipped)
	// 全部重复时不触达分析服务
	assert.Equal(t, 0, analyzer.callCount)
}

func TestHandleBatchUpload_AnalysisFailureReleasesDedup(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	analyzer := &stubAnalyzer{err: errors.New("connection refused")}
	h := newTestHandler(repo, analyzer)
	session := newFakeSession()
	h.session = session

	files := []types.FileBlob{
		{Filename: "a.pdf", Data: []byte("pdf-a")},
		{Filename: "b.pdf", Data: []byte("pdf-b")},
	}
	_, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", files)
	require.Error(t, err)

	// 整体失败后全部登记撤销，原样重试不会被当成重复
	assert.Empty(t, session.registered)

	analyzer.err = nil
	analyzer.resp = &types.AnalysisResponse{
		Success: true,
		Candidates: []types.AnalysisResult{
			{Name: "A", Score: utils.IntPtr(80)},
			{Name: "B", Score: utils.IntPtr(70)},
		},
	}
	resp, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", files)
	require.NoError(t, err)
	assert.Empty(t, resp.Skipped)
	assert.Len(t, resp.Saved, 2)
}

func TestHandleBatchUpload_FailedRecordsStayRetryable(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	repo.failAtCall = 2
	analyzer := &stubAnalyzer{
		resp: &types.AnalysisResponse{
			Success: true,
			Candidates: []types.AnalysisResult{
				{Name: "A", Score: utils.IntPtr(80)},
				{Name: "B", Score: utils.IntPtr(70)},
			},
		},
	}
	h := newTestHandler(repo, analyzer)
	session := newFakeSession()
	h.session = session

	resp, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", []types.FileBlob{
		{Filename: "a.pdf", Data: []byte("pdf-a")},
		{Filename: "b.pdf", Data: []byte("pdf-b")},
	})
	require.NoError(t, err)
	require.Len(t, resp.Failed, 1)

	// 成功条目的文件保持登记，失败条目的文件撤销登记
	assert.True(t, session.registered[utils.CalculateMD5([]byte("pdf-a"))])
	assert.False(t, session.registered[utils.CalculateMD5([]byte("pdf-b"))])

	// 只重试失败的那份文件: 不会被去重吞掉
	analyzer.resp.Candidates = []types.AnalysisResult{
		{Name: "B", Score: utils.IntPtr(70)},
	}
	repo.failAtCall = 0
	retry, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", []types.FileBlob{
		{Filename: "b.pdf", Data: []byte("pdf-b")},
	})
	require.NoError(t, err)
	assert.Empty(t, retry.Skipped)
	assert.Len(t, retry.Saved, 1)
	assert.Empty(t, retry.Failed)
}

func TestHandleDashboardStats_RefreshedAtFromSession(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	h := newTestHandler(repo, &stubAnalyzer{})
	session := newFakeSession()
	h.session = session

	// 其他实例写入的刷新时间晚于本实例
	remote := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	session.lastRefresh["owner-1"] = remote

	stats, err := h.HandleDashboardStats(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, remote.Format(time.RFC3339), stats.RefreshedAt)
}

func TestHandleListCandidates_ViewMapping(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	analyzer := &stubAnalyzer{
		resp: &types.AnalysisResponse{
			Success: true,
			Candidates: []types.AnalysisResult{
				{Name: "Ana", Score: utils.IntPtr(87), Summary: "不错", Phone: "11999998888"},
				{Name: "SemNota"},
			},
		},
	}
	h := newTestHandler(repo, analyzer)

	_, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", []types.FileBlob{
		{Filename: "a.pdf", Data: []byte("a")},
	})
	require.NoError(t, err)

	views, err := h.HandleListCandidates(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, views, 2)

	// 87分进高分档但未到90分录用线
	assert.Equal(t, "high", views[0].Tier)
	assert.Equal(t, "5511999998888", views[0].Contact)
	// 缺失分数按0处理，落入低分档
	assert.Nil(t, views[1].Score)
	assert.Equal(t, "low", views[1].Tier)
	assert.Empty(t, views[1].Contact)
}

func TestHandleApprovedCandidates(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	analyzer := &stubAnalyzer{
		resp: &types.AnalysisResponse{
			Success: true,
			Candidates: []types.AnalysisResult{
				{Name: "Aprovada", Score: utils.IntPtr(92)},
				{Name: "QuaseLa", Score: utils.IntPtr(89)},
			},
		},
	}
	h := newTestHandler(repo, analyzer)

	_, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", []types.FileBlob{
		{Filename: "a.pdf", Data: []byte("a")},
	})
	require.NoError(t, err)

	approved, err := h.HandleApprovedCandidates(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "Aprovada", approved[0].Name)
}

func TestHandleCreateJob(t *testing.T) {
	repo := newStubRepo()
	h := newTestHandler(repo, &stubAnalyzer{})

	job, err := h.HandleCreateJob(context.Background(), "owner-1", &CreateJobRequest{Title: "  数据工程师  "})
	require.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, "数据工程师", job.Title)
	assert.Equal(t, "owner-1", job.OwnerUserID)

	_, err = h.HandleCreateJob(context.Background(), "owner-1", &CreateJobRequest{Title: "   "})
	assert.ErrorIs(t, err, ingest.ErrValidation)
}

func TestHandleDeleteJob_OrphansSurvive(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	analyzer := &stubAnalyzer{
		resp: &types.AnalysisResponse{
			Success: true,
			Candidates: []types.AnalysisResult{
				{Name: "Ana", Score: utils.IntPtr(91)},
			},
		},
	}
	h := newTestHandler(repo, analyzer)

	_, err := h.HandleBatchUpload(context.Background(), "job-1", "owner-1", []types.FileBlob{
		{Filename: "a.pdf", Data: []byte("a")},
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleDeleteJob(context.Background(), "job-1", "owner-1"))

	// 岗位消失但候选人保留为孤儿记录，全局统计照常计入
	stats, err := h.HandleDashboardStats(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Stats.ActiveJobs)
	assert.Equal(t, 1, stats.Stats.TotalCandidates)
	assert.Equal(t, 1, stats.Stats.ApprovedCandidates)
	assert.Empty(t, stats.Jobs)
}

func TestHandleDeleteJob_OwnershipEnforced(t *testing.T) {
	repo := newStubRepo()
	repo.seedJob("job-1", "岗位", "owner-1")
	h := newTestHandler(repo, &stubAnalyzer{})

	err := h.HandleDeleteJob(context.Background(), "job-1", "owner-2")
	assert.ErrorIs(t, err, ingest.ErrValidation)

	err = h.HandleDeleteJob(context.Background(), "ghost", "owner-1")
	assert.ErrorIs(t, err, ingest.ErrValidation)
}
