package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const rateLimiterCapacity = 10000

// RateLimiter 是固定窗口计数器。每个 key 的窗口从第一次请求开始，
// 条目在窗口结束后过期，总条目数受 LRU 容量限制。
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	entries *expirable.LRU[string, *rateWindow]
}

type rateWindow struct {
	count int
	reset time.Time
}

// NewRateLimiter 构造限流器，limit<=0 时不做限制
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: expirable.NewLRU[string, *rateWindow](rateLimiterCapacity, nil, window),
	}
}

// Allow 记录一次请求并判断是否仍在额度内
func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.entries.Get(key)
	if !ok || now.After(entry.reset) {
		entry = &rateWindow{reset: now.Add(r.window)}
		r.entries.Add(key, entry)
	}
	entry.count++
	return entry.count <= r.limit
}
