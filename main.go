package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"roboadvisor/apis"
	"roboadvisor/pkg/app"
	"roboadvisor/pkg/batch"
	"roboadvisor/pkg/config"
	"roboadvisor/pkg/websocket"
	"roboadvisor/servers"
)

func main() {
	logrus.Info("启动Robo-Advisor...")

	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("配置加载失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 实时事件推送
	wsManager := websocket.NewManager(cfg.Server.CORSOrigins)
	wsManager.Start(ctx)

	application, err := app.New(ctx, cfg, wsManager)
	if err != nil {
		logrus.Fatalf("初始化失败: %v", err)
	}
	defer application.Close()

	// 进程内夜间批处理
	var scheduler *batch.Scheduler
	if cfg.Batch.InServer {
		scheduler = batch.NewScheduler(application.BatchRunner(application.Reporter()), cfg.Batch.Cron)
		if err := scheduler.Start(ctx); err != nil {
			logrus.Fatalf("批处理调度启动失败: %v", err)
		}
	}

	server := servers.NewHTTPServer(apis.Dependencies{
		Config:    cfg,
		Repo:      application.Repo,
		Tokens:    application.Tokens,
		Analysis:  application.Analysis,
		WebSocket: wsManager,
	})
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logrus.Info("Robo-Advisor启动完成!")

	// 优雅关闭
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logrus.Errorf("HTTP服务器异常退出: %v", err)
		}
	}
	gracefulShutdown(server, scheduler)
}

// gracefulShutdown 优雅关闭
func gracefulShutdown(server *servers.HTTPServer, scheduler *batch.Scheduler) {
	logrus.Info("正在关闭Robo-Advisor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP服务器关闭失败: %v", err)
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	logrus.Info("Robo-Advisor已关闭")
}
