package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"screening-agent-go/internal/ingest"
	"screening-agent-go/internal/storage/models"
)

// SyncCache 当前会话的岗位+候选人内存缓存。
// 不是数据源头: 只在显式Refresh时整体替换，刷新间隔内的陈旧是可接受的
// 有界不一致。岗位创建、岗位删除、批次摄入完成后都必须刷新一次。
type SyncCache struct {
	mu          sync.RWMutex
	repo        ingest.CandidateRepository
	logger      zerolog.Logger
	jobs        []models.Job
	candidates  []models.Candidate
	refreshedAt time.Time
}

// NewSyncCache 创建会话缓存
func NewSyncCache(repo ingest.CandidateRepository, logger zerolog.Logger) *SyncCache {
	return &SyncCache{
		repo:   repo,
		logger: logger.With().Str("component", "sync_cache").Logger(),
	}
}

// Refresh 重新拉取指定用户的岗位集与候选人集并整体替换缓存。
// 两个查询并发发起，任一失败则整个刷新失败，不做部分填充。
func (c *SyncCache) Refresh(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("刷新缓存需要用户ID")
	}

	startTime := time.Now()

	var jobs []models.Job
	var candidates []models.Candidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		jobs, err = c.repo.ListJobsByOwner(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("拉取岗位列表失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		candidates, err = c.repo.ListCandidatesByOwner(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("拉取候选人列表失败: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		c.logger.Error().Err(err).Str("owner_id", ownerID).Msg("会话缓存刷新失败，保留旧数据")
		return err
	}

	// 整体替换，不做字段级修补，省掉细粒度锁
	c.mu.Lock()
	c.jobs = jobs
	c.candidates = candidates
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug().
		Str("owner_id", ownerID).
		Int("jobs", len(jobs)).
		Int("candidates", len(candidates)).
		Dur("elapsed", time.Since(startTime)).
		Msg("会话缓存刷新完成")

	return nil
}

// Snapshot 返回当前缓存的岗位集与候选人集的拷贝
func (c *SyncCache) Snapshot() ([]models.Job, []models.Candidate) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	jobs := make([]models.Job, len(c.jobs))
	copy(jobs, c.jobs)
	candidates := make([]models.Candidate, len(c.candidates))
	copy(candidates, c.candidates)

	return jobs, candidates
}

// RefreshedAt 返回最近一次成功刷新的时间，从未刷新时为零值
func (c *SyncCache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}
