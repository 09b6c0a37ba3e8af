package redis

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// KeyPrefixAnalysis 分析缓存键前缀
const KeyPrefixAnalysis = "roboadvisor:analysis:"

// AnalysisStore 基于Redis的分析结果缓存，过期交给Redis TTL
type AnalysisStore struct {
	client *Client
}

// NewAnalysisStore 创建Redis缓存存储
func NewAnalysisStore(client *Client) *AnalysisStore {
	return &AnalysisStore{client: client}
}

// Get 获取缓存；Redis异常按未命中处理
func (s *AnalysisStore) Get(key string) ([]byte, bool) {
	ctx, cancel := s.client.opContext()
	defer cancel()

	data, err := s.client.rdb.Get(ctx, KeyPrefixAnalysis+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.Warnf("读取分析缓存失败: %v", err)
		}
		return nil, false
	}
	return data, true
}

// Set 设置缓存
func (s *AnalysisStore) Set(key string, value []byte, ttl time.Duration) {
	ctx, cancel := s.client.opContext()
	defer cancel()

	if err := s.client.rdb.Set(ctx, KeyPrefixAnalysis+key, value, ttl).Err(); err != nil {
		logrus.Warnf("写入分析缓存失败: %v", err)
	}
}

// Invalidate 删除缓存
func (s *AnalysisStore) Invalidate(key string) {
	ctx, cancel := s.client.opContext()
	defer cancel()

	if err := s.client.rdb.Del(ctx, KeyPrefixAnalysis+key).Err(); err != nil {
		logrus.Warnf("删除分析缓存失败: %v", err)
	}
}

// Clear 删除全部分析缓存
func (s *AnalysisStore) Clear() {
	ctx, cancel := s.client.opContext()
	defer cancel()

	iter := s.client.rdb.Scan(ctx, 0, KeyPrefixAnalysis+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logrus.Warnf("扫描分析缓存失败: %v", err)
		return
	}
	if len(keys) > 0 {
		if err := s.client.rdb.Del(ctx, keys...).Err(); err != nil {
			logrus.Warnf("清空分析缓存失败: %v", err)
		}
	}
}
