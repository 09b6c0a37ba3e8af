package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roboadvisor/pkg/middleware"
)

func newTestServer(t *testing.T) (*Manager, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	manager := NewManager([]string{"*"})
	manager.Start(ctx)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if uid, err := strconv.Atoi(c.Query("uid")); err == nil {
			c.Set(middleware.ContextUserID, uint(uid))
		}
		c.Next()
	}, manager.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return manager, srv
}

func dial(t *testing.T, srv *httptest.Server, uid int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?uid=" + strconv.Itoa(uid)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, EventConnected, welcome.Event)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestPublishToUserReachesOnlyThatUser(t *testing.T) {
	manager, srv := newTestServer(t)
	alice := dial(t, srv, 1)
	bob := dial(t, srv, 2)

	manager.PublishToUser(1, "analysis.completed", map[string]string{"kind": "portfolio"})

	msg := readMessage(t, alice)
	assert.Equal(t, MessageTypeEvent, msg.Type)
	assert.Equal(t, "analysis.completed", msg.Event)
	assert.Equal(t, map[string]any{"kind": "portfolio"}, msg.Data)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's event")
}

func TestPingPong(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv, 3)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestStatsCountsUsers(t *testing.T) {
	manager, srv := newTestServer(t)
	dial(t, srv, 1)
	dial(t, srv, 1)
	dial(t, srv, 2)

	stats := manager.Hub().Stats()
	assert.Equal(t, 3, stats.ConnectedClients)
	assert.Equal(t, 2, stats.ConnectedUsers)
}

func TestHandleWebSocketRequiresUser(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublishWithoutClientsIsNoop(t *testing.T) {
	hub := NewHub()
	hub.PublishToUser(42, "analysis.completed", nil)
	assert.Zero(t, hub.Stats().Dropped)
}
