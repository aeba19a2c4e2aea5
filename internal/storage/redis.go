package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"screening-agent-go/internal/config"
	"screening-agent-go/internal/constants"
	"screening-agent-go/internal/tracing"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// Redis 键值存储适配器，承担已分析文件的MD5去重
type Redis struct {
	client *redis.Client
	cfg    *config.RedisConfig
}

// NewRedisAdapter 创建Redis适配器并验证连通性
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("Redis配置不能为空")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	// 注册OpenTelemetry追踪钩子
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("注册Redis追踪钩子失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	return &Redis{
		client: client,
		cfg:    cfg,
	}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping 检查Redis连通性
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// CheckAndAddRawFileMD5 原子地检查并登记一个原始文件MD5。
// 返回true表示该文件之前已提交过分析，调用方应跳过。
// 使用SETNX+TTL，过期后同一文件允许重新分析。
func (r *Redis) CheckAndAddRawFileMD5(ctx context.Context, md5Hex string) (bool, error) {
	key := fmt.Sprintf(constants.KeyRawFileMD5, md5Hex)
	set, err := r.client.SetNX(ctx, key, "1", constants.RawFileMD5ExpireDuration).Result()
	if err != nil {
		return false, fmt.Errorf("登记文件MD5失败 (key=%s): %w", tracing.SafeRedisKey(key), err)
	}
	// SETNX失败说明键已存在，即重复文件
	return !set, nil
}

// RemoveRawFileMD5 移除一个文件MD5登记，用于持久化失败后允许重试
func (r *Redis) RemoveRawFileMD5(ctx context.Context, md5Hex string) error {
	key := fmt.Sprintf(constants.KeyRawFileMD5, md5Hex)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("移除文件MD5登记失败 (key=%s): %w", tracing.SafeRedisKey(key), err)
	}
	return nil
}

// SetOwnerLastRefresh 记录用户会话缓存最近一次刷新时间
func (r *Redis) SetOwnerLastRefresh(ctx context.Context, ownerID string, at time.Time) error {
	key := fmt.Sprintf(constants.KeyOwnerLastRefresh, ownerID)
	if err := r.client.Set(ctx, key, at.Format(time.RFC3339Nano), 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("记录缓存刷新时间失败: %w", err)
	}
	return nil
}

// GetOwnerLastRefresh 读取用户会话缓存最近一次刷新时间
func (r *Redis) GetOwnerLastRefresh(ctx context.Context, ownerID string) (time.Time, error) {
	key := fmt.Sprintf(constants.KeyOwnerLastRefresh, ownerID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("读取缓存刷新时间失败: %w", err)
	}
	return time.Parse(time.RFC3339Nano, val)
}
