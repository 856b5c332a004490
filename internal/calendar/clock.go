package calendar

import (
	"sync"
	"time"
)

// Clock 抽象当前时间，便于测试中固定"今天"。
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系统时间。
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock 是可控的测试时钟。
type FakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{t: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
