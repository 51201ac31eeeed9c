package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const addr = "0xAbC0000000000000000000000000000000000001"

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	go hub.Run()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, r.URL.Query().Get("address"))
		if !hub.Register(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, address string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?address=" + address
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublish_ReachesEveryConnectionOfAddress(t *testing.T) {
	hub, srv := startHub(t)

	a := dial(t, srv, addr)
	b := dial(t, srv, strings.ToLower(addr))
	other := dial(t, srv, "0x0000000000000000000000000000000000000002")

	require.Eventually(t, func() bool { return hub.Subscribers(addr) == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(addr, TypeUserUpdated, map[string]string{"id": "alice"}))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, TypeUserUpdated, ev.Type)
		assert.Equal(t, strings.ToLower(addr), ev.Address)
		assert.JSONEq(t, `{"id":"alice"}`, string(ev.Data))
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestUnregister_OnClientClose(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, addr)
	require.Eventually(t, func() bool { return hub.Subscribers(addr) == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers(addr) == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublish_NoSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.NoError(t, hub.Publish(addr, TypeEmailVerified, nil))
	assert.Equal(t, 0, hub.Subscribers(addr))
}

func TestRegister_AfterStop(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.Stop()
	assert.False(t, hub.Register(&Client{Send: make(chan []byte, 1)}))
}

func TestEvent_JSON(t *testing.T) {
	raw, err := json.Marshal(Event{Type: TypeUserRegistered, Address: "0xabc", Timestamp: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user_registered","address":"0xabc","timestamp":"1970-01-01T00:00:00Z"}`, string(raw))
}
