package cache

import (
	"sync"

	"github.com/rs/zerolog"

	"screening-agent-go/internal/ingest"
)

// Registry 按用户管理会话缓存。
// 每个用户持有独立的SyncCache，互不干扰。
type Registry struct {
	mu     sync.Mutex
	repo   ingest.CandidateRepository
	logger zerolog.Logger
	caches map[string]*SyncCache
}

// NewRegistry 创建会话缓存注册表
func NewRegistry(repo ingest.CandidateRepository, logger zerolog.Logger) *Registry {
	return &Registry{
		repo:   repo,
		logger: logger,
		caches: make(map[string]*SyncCache),
	}
}

// ForOwner 返回指定用户的会话缓存，首次访问时创建
func (r *Registry) ForOwner(ownerID string) *SyncCache {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[ownerID]
	if !ok {
		c = NewSyncCache(r.repo, r.logger)
		r.caches[ownerID] = c
	}
	return c
}
