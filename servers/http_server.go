package servers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roboadvisor/apis"
)

type HTTPServer struct {
	engine *gin.Engine
	server *http.Server
	port   string
}

// NewHTTPServer 创建HTTP服务器
func NewHTTPServer(deps apis.Dependencies) *HTTPServer {
	// 设置Gin模式
	if deps.Config.DebugMode() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	// 设置路由
	apis.SetupRoutes(engine, deps)

	port := deps.Config.Server.Port
	return &HTTPServer{
		engine: engine,
		port:   port,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler 返回路由，供测试使用
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Start 启动HTTP服务器，Shutdown 后返回nil
func (s *HTTPServer) Start() error {
	logrus.Infof("HTTP服务器启动在端口 %s", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭，等待进行中的请求完成
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logrus.Info("正在关闭HTTP服务器...")
	return s.server.Shutdown(ctx)
}
