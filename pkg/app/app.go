// Package app 组装服务端和批处理命令共用的组件。
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"roboadvisor/pkg/analysis"
	"roboadvisor/pkg/auth"
	"roboadvisor/pkg/batch"
	"roboadvisor/pkg/cache"
	"roboadvisor/pkg/config"
	"roboadvisor/pkg/database"
	"roboadvisor/pkg/llm"
	"roboadvisor/pkg/ratelimit"
	"roboadvisor/pkg/redis"
	"roboadvisor/pkg/repository"
	"roboadvisor/pkg/telegram"
)

// App 运行期依赖
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Repo     *repository.Repository
	Cache    cache.Store
	Tokens   *auth.TokenManager
	Analysis *analysis.Service

	closers []func() error
}

// New 连接数据库和缓存并创建分析服务；notifier 可为 nil
func New(ctx context.Context, cfg *config.Config, notifier analysis.Notifier) (*App, error) {
	a := &App{Config: cfg, Tokens: auth.NewTokenManager(cfg.JWT)}

	db, err := database.Open(cfg.Database, cfg.DebugMode())
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	if err := database.Migrate(db); err != nil {
		a.Close()
		return nil, err
	}
	a.DB = db
	a.Repo = repository.New(db)

	store, err := a.openCache()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cache = store

	provider, err := llm.NewProvider(ctx, cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logrus.Warnf("未配置 %s 凭据，分析接口将返回 503", cfg.LLM.Provider)
		provider = nil
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("create llm provider: %w", err)
	default:
		logrus.Infof("分析模型: %s", provider.Name())
	}

	// 限流状态只在本进程内有效，多实例部署时每个实例各自计数
	logrus.Warn("分析限流为进程内计数，多实例部署时限额按实例数放大")

	a.Analysis = analysis.NewService(analysis.Options{
		Client:           analysis.NewClient(provider),
		Store:            a.Repo,
		Cache:            store,
		CacheTTL:         cfg.Cache.TTL,
		PortfolioLimiter: ratelimit.New("portfolio", cfg.RateLimit.PortfolioLimit, cfg.RateLimit.Window),
		AssetLimiter:     ratelimit.New("asset", cfg.RateLimit.AssetLimit, cfg.RateLimit.Window),
		Notifier:         notifier,
	})
	return a, nil
}

func (a *App) openCache() (cache.Store, error) {
	if a.Config.Cache.Backend != "redis" {
		logrus.Info("分析缓存: memory")
		return cache.NewMemoryStore(), nil
	}
	client, err := redis.NewClient(a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	logrus.Infof("分析缓存: redis %s", a.Config.Redis.Addr)
	return redis.NewAnalysisStore(client), nil
}

// Reporter 批处理通知，未配置 Telegram 时返回 nil
func (a *App) Reporter() batch.Reporter {
	client, err := telegram.New(a.Config.Telegram)
	if err != nil {
		logrus.Errorf("Telegram初始化失败: %v", err)
		return nil
	}
	if client == nil {
		return nil
	}
	return client
}

// BatchRunner 创建夜间批处理
func (a *App) BatchRunner(reporter batch.Reporter) *batch.Runner {
	return batch.NewRunner(a.Repo, a.Analysis, reporter, a.Config.Batch)
}

// Close 释放连接，按打开的相反顺序
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logrus.Warnf("关闭资源失败: %v", err)
		}
	}
	a.closers = nil
}
