package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 表示单个WebSocket连接，归属于一个登录用户
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	userID uint

	connectedAt time.Time

	closed     bool
	closeMutex sync.RWMutex
}

// NewClient 创建新的客户端
func NewClient(hub *Hub, conn *websocket.Conn, id string, userID uint) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          id,
		userID:      userID,
		connectedAt: time.Now(),
	}
}

// StartClient 启动客户端的读写协程
func (c *Client) StartClient() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) isClosed() bool {
	c.closeMutex.RLock()
	defer c.closeMutex.RUnlock()
	return c.closed
}

func (c *Client) safeClose() {
	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend 非阻塞写入发送缓冲区，缓冲区已满或已关闭时返回false
func (c *Client) trySend(payload []byte) bool {
	c.closeMutex.RLock()
	defer c.closeMutex.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.Errorf("序列化消息失败: %v", err)
		return
	}
	if !c.trySend(data) {
		c.hub.drop(c)
	}
}

func (c *Client) sendError(code, message string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Data:      ErrorMessage{Error: message, Code: code},
		Timestamp: time.Now().UnixMilli(),
	})
}

// readPump 读取客户端消息，连接断开时注销
func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket错误: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("INVALID_MESSAGE", "invalid message format")
			continue
		}
		c.handleMessage(&msg)
	}
}

// writePump 把发送缓冲区写到连接上并定时发送ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePing:
		c.sendMessage(&Message{
			Type:      MessageTypePong,
			Timestamp: time.Now().UnixMilli(),
		})
	default:
		c.sendError("UNKNOWN_MESSAGE_TYPE", "unsupported message type: "+msg.Type)
	}
}
