package websocket

import (
	"context"
	"net/http"

	"roboadvisor/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Manager WebSocket管理器
type Manager struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewManager 创建WebSocket管理器，origins 为 "*" 时接受任意来源
func NewManager(origins []string) *Manager {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[origin] = true
	}

	return &Manager{
		hub: NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Start 启动Hub循环
func (m *Manager) Start(ctx context.Context) {
	go m.hub.Run(ctx)
}

// Hub 获取Hub实例
func (m *Manager) Hub() *Hub {
	return m.hub
}

// PublishToUser 推送用户事件
func (m *Manager) PublishToUser(userID uint, eventType string, data interface{}) {
	m.hub.PublishToUser(userID, eventType, data)
}

// HandleWebSocket 处理 /ws 连接升级，需要认证中间件先写入用户ID
func (m *Manager) HandleWebSocket(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated", "code": "UNAUTHORIZED"})
		return
	}

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		logrus.Errorf("WebSocket升级失败: %v", err)
		return
	}

	client := NewClient(m.hub, conn, uuid.NewString(), userID)
	m.hub.register <- client
	client.StartClient()

	logrus.WithFields(logrus.Fields{
		"clientId":   client.id,
		"userId":     userID,
		"remoteAddr": c.Request.RemoteAddr,
		"userAgent":  c.Request.UserAgent(),
	}).Info("WebSocket连接已建立")
}

// GetStats 获取WebSocket统计信息
func (m *Manager) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   m.hub.Stats(),
	})
}
