package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"roboadvisor/pkg/config"
)

// Client Redis客户端
type Client struct {
	rdb     *redis.Client
	ctx     context.Context
	timeout time.Duration
}

// NewClient 连接Redis并检查连通性
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()

	// 测试连接
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis连接失败: %w", err)
	}

	logrus.Info("Redis连接成功")
	return &Client{
		rdb:     rdb,
		ctx:     ctx,
		timeout: 2 * time.Second,
	}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, c.timeout)
}
