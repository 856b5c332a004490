package service

import "sync"

const userLockStripes = 64

// userLocks 按用户 ID 分片加锁，同一用户的账本操作串行执行，不同分片之间互不阻塞。
type userLocks struct {
	stripes [userLockStripes]sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{}
}

func (l *userLocks) lock(userID uint) func() {
	mu := &l.stripes[userID%userLockStripes]
	mu.Lock()
	return mu.Unlock
}
