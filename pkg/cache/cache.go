// Package cache 分析结果缓存：按 (范围, 用户, 对象) 派生键，TTL 惰性过期。
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL 分析结果默认缓存时长
const DefaultTTL = 12 * time.Hour

// 缓存范围
const (
	ScopePortfolio = "portfolio"
	ScopeAsset     = "asset"
	ScopeWatchlist = "watchlist"
)

// Store 缓存存储
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Invalidate(key string)
	Clear()
}

// Key 由范围、用户和可选对象ID计算确定性的缓存键
func Key(scope string, userID uint, subjectID *uint) string {
	raw := fmt.Sprintf("%s_analysis_%d", scope, userID)
	if subjectID != nil {
		raw = fmt.Sprintf("%s_%d", raw, *subjectID)
	}
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Entry 缓存条目
type Entry struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// MemoryStore 进程内TTL缓存，无后台清理，无容量上限
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore 创建内存缓存
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// WithClock 替换时钟
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Get 命中未过期条目时返回；过期条目在此被删除
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !s.now().Before(entry.ExpiresAt) {
		s.mu.Lock()
		// 读锁释放后可能已被重新写入
		if current, ok := s.entries[key]; ok && !s.now().Before(current.ExpiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return entry.Payload, true
}

// Set 写入，覆盖已有条目
func (s *MemoryStore) Set(key string, value []byte, ttl time.Duration) {
	now := s.now()
	s.mu.Lock()
	s.entries[key] = Entry{
		Key:       key,
		Payload:   value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.mu.Unlock()
}

// Invalidate 删除指定键
func (s *MemoryStore) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Clear 清空
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
}

// Len 当前条目数（含尚未被访问的过期条目）
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
