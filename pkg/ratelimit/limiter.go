// Package ratelimit 每用户滑动窗口限流，仅进程内有效，重启即清零。
package ratelimit

import (
	"sync"
	"time"
)

// 默认限额
const (
	DefaultWindow         = 60 * time.Minute
	DefaultPortfolioLimit = 10
	DefaultAssetLimit     = 20
)

// Limiter 滑动窗口计数器
type Limiter struct {
	name   string
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[uint][]time.Time
	now     func() time.Time
}

// New 创建限流器
func New(name string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		name:    name,
		limit:   limit,
		window:  window,
		windows: make(map[uint][]time.Time),
		now:     time.Now,
	}
}

// WithClock 替换时钟
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow 清理窗口外的请求；未达上限时记录本次并放行，达到上限时拒绝且不记录
func (l *Limiter) Allow(userID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	requests := l.windows[userID]
	kept := requests[:0]
	for _, ts := range requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.windows[userID] = kept
		return false
	}

	l.windows[userID] = append(kept, now)
	return true
}

// Remaining 当前窗口内剩余次数
func (l *Limiter) Remaining(userID uint) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	used := 0
	for _, ts := range l.windows[userID] {
		if ts.After(cutoff) {
			used++
		}
	}
	if used >= l.limit {
		return 0
	}
	return l.limit - used
}

// Name 限流器名称
func (l *Limiter) Name() string { return l.name }

// Limit 窗口内最大请求数
func (l *Limiter) Limit() int { return l.limit }

// Window 窗口长度
func (l *Limiter) Window() time.Duration { return l.window }
