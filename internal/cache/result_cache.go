package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/crewflow/llm/tools"
)

const toolKeyPrefix = "tool:"

// RedisResultCache 把工具结果存入 Redis，实现 tools.ResultCache。
// 多个 crewflow 进程可以共享同一份抓取与搜索结果。
type RedisResultCache struct {
	m *Manager
}

// NewRedisResultCache 基于 Manager 创建工具结果缓存。
func NewRedisResultCache(m *Manager) *RedisResultCache {
	return &RedisResultCache{m: m}
}

var _ tools.ResultCache = (*RedisResultCache)(nil)

func (c *RedisResultCache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	val, err := c.m.Get(ctx, toolKeyPrefix+key)
	if IsCacheMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(val), true, nil
}

func (c *RedisResultCache) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	return c.m.Set(ctx, toolKeyPrefix+key, string(value), ttl)
}
