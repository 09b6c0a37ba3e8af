package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// 消息类型
	MessageTypeEvent = "event"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
	MessageTypeError = "error"

	// EventConnected 连接建立后发给客户端的第一条事件
	EventConnected = "connected"

	// 时间常量
	writeWait      = 10 * time.Second    // 写入等待时间
	pongWait       = 60 * time.Second    // Pong等待时间
	pingPeriod     = (pongWait * 9) / 10 // Ping发送周期
	maxMessageSize = 512                 // 最大消息大小
	sendBuffer     = 64
)

// Message WebSocket消息格式
type Message struct {
	Type      string      `json:"type"`
	Event     string      `json:"event,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorMessage 错误消息格式
type ErrorMessage struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Stats Hub统计信息
type Stats struct {
	ConnectedClients int       `json:"connectedClients"`
	ConnectedUsers   int       `json:"connectedUsers"`
	Delivered        uint64    `json:"delivered"`
	Dropped          uint64    `json:"dropped"`
	StartedAt        time.Time `json:"startedAt"`
}

// Hub 按用户维护活跃连接，把分析事件推送给对应用户
type Hub struct {
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[uint]map[*Client]struct{}

	delivered uint64
	dropped   uint64
	startedAt time.Time
}

// NewHub 创建新的Hub
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		clients:    make(map[*Client]struct{}),
		byUser:     make(map[uint]map[*Client]struct{}),
		startedAt:  time.Now(),
	}
}

// Run 处理注册与注销，直到ctx结束
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.add(client)
			logrus.WithFields(logrus.Fields{
				"clientId": client.id,
				"userId":   client.userID,
			}).Info("客户端已连接")

			client.sendMessage(&Message{
				Type:      MessageTypeEvent,
				Event:     EventConnected,
				Data:      map[string]string{"clientId": client.id},
				Timestamp: time.Now().UnixMilli(),
			})

		case client := <-h.unregister:
			if h.remove(client) {
				logrus.WithFields(logrus.Fields{
					"clientId": client.id,
					"userId":   client.userID,
				}).Info("客户端已断开")
			}
		}
	}
}

// PublishToUser 向某个用户的全部连接推送事件，发送缓冲区已满的连接会被断开
func (h *Hub) PublishToUser(userID uint, eventType string, data interface{}) {
	payload, err := json.Marshal(Message{
		Type:      MessageTypeEvent,
		Event:     eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		logrus.Errorf("序列化推送消息失败: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byUser[userID]))
	for client := range h.byUser[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		logrus.Debugf("用户 %d 没有在线连接，跳过 %s 推送", userID, eventType)
		return
	}

	var failed []*Client
	for _, client := range targets {
		if client.trySend(payload) {
			h.count(&h.delivered)
			continue
		}
		h.count(&h.dropped)
		failed = append(failed, client)
	}

	for _, client := range failed {
		h.drop(client)
	}

	logrus.WithFields(logrus.Fields{
		"userId": userID,
		"event":  eventType,
		"sent":   len(targets) - len(failed),
		"failed": len(failed),
	}).Debug("用户事件推送完成")
}

// Stats 获取Hub统计信息
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		ConnectedClients: len(h.clients),
		ConnectedUsers:   len(h.byUser),
		Delivered:        h.delivered,
		Dropped:          h.dropped,
		StartedAt:        h.startedAt,
	}
}

func (h *Hub) count(counter *uint64) {
	h.mu.Lock()
	*counter++
	h.mu.Unlock()
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
	if h.byUser[client.userID] == nil {
		h.byUser[client.userID] = make(map[*Client]struct{})
	}
	h.byUser[client.userID][client] = struct{}{}
}

func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	if userClients := h.byUser[client.userID]; userClients != nil {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.byUser, client.userID)
		}
	}
	client.safeClose()
	return true
}

// drop 注销客户端，注销通道已满时直接移除
func (h *Hub) drop(client *Client) {
	if client.isClosed() {
		return
	}
	select {
	case h.unregister <- client:
	default:
		h.remove(client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.safeClose()
	}
	h.clients = make(map[*Client]struct{})
	h.byUser = make(map[uint]map[*Client]struct{})
	logrus.Info("WebSocket Hub 已停止")
}
