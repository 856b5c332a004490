package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// StatsCache 缓存统计结果。容量与过期时间固定，按 LRU 淘汰；
// 账本或习惯发生变更时按用户整体失效。
// 每个用户有一个失效代数，加载期间代数变化的结果不会写回。
type StatsCache struct {
	entries *expirable.LRU[string, any]

	mu          sync.Mutex
	generations map[uint]uint64
}

// NewStatsCache 构造缓存，size<=0 时返回 nil，表示不缓存
func NewStatsCache(size int, ttl time.Duration) *StatsCache {
	if size <= 0 {
		return nil
	}
	return &StatsCache{
		entries:     expirable.NewLRU[string, any](size, nil, ttl),
		generations: make(map[uint]uint64),
	}
}

func statsKey(userID uint, parts ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "u:%d|", userID)
	for _, part := range parts {
		fmt.Fprintf(&b, "%v|", part)
	}
	return b.String()
}

func (c *StatsCache) get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

// InvalidateUser 删除该用户的全部缓存项
func (c *StatsCache) InvalidateUser(userID uint) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++

	prefix := fmt.Sprintf("u:%d|", userID)
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

func (c *StatsCache) generation(userID uint) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// putIfCurrent 仅在用户缓存自 gen 以来没有失效时写入
func (c *StatsCache) putIfCurrent(userID uint, gen uint64, key string, value any) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[userID] != gen {
		return false
	}
	c.entries.Add(key, value)
	return true
}

// Len 返回当前缓存项数量
func (c *StatsCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// cached 先查缓存，未命中时调用 load 并写回
func cached[T any](c *StatsCache, userID uint, key string, load func() (T, error)) (T, error) {
	if value, ok := c.get(key); ok {
		if typed, ok := value.(T); ok {
			return typed, nil
		}
	}
	gen := c.generation(userID)
	value, err := load()
	if err != nil {
		return value, err
	}
	c.putIfCurrent(userID, gen, key, value)
	return value, nil
}
