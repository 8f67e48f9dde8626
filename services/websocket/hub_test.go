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
)

func TestBroadcastToUser(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &Client{hub: h, send: make(chan []byte, 1), userID: 7}
	h.register <- c
	require.Eventually(t, func() bool { return h.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, h.BroadcastToUser(8, Message{Type: "alert"}))
	assert.Equal(t, 1, h.BroadcastToUser(7, Message{Type: "alert", Data: "Group is full"}))

	var got Message
	require.NoError(t, json.Unmarshal(<-c.send, &got))
	assert.Equal(t, "alert", got.Type)
	assert.Equal(t, "Group is full", got.Data)
}

func TestBroadcastToUserDropsSlowClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &Client{hub: h, send: make(chan []byte, 1), userID: 3}
	h.register <- c
	require.Eventually(t, func() bool { return h.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, h.BroadcastToUser(3, Message{Type: "one"}))
	assert.Equal(t, 0, h.BroadcastToUser(3, Message{Type: "two"}))
	assert.Equal(t, 0, h.GetClientCount())
}

func TestServeWS(t *testing.T) {
	h := NewHub()
	go h.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, 42)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	read := func() Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var m Message
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	}

	assert.Equal(t, 1, h.BroadcastToUser(42, Message{Type: "notification"}))
	assert.Equal(t, "notification", read().Type)

	h.Broadcast(Message{Type: "maintenance"})
	assert.Equal(t, "maintenance", read().Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
