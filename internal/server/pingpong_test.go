package server

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestPingPong_Handle(t *testing.T) {
	tests := []struct {
		name   string
		frames []string
		pongs  int
	}{
		{name: "ping before serve", frames: []string{"ping"}, pongs: 0},
		{name: "serve then ping", frames: []string{"serve", "ping"}, pongs: 1},
		{name: "ping serve ping", frames: []string{"ping", "serve", "ping"}, pongs: 1},
		{name: "serve twice", frames: []string{"serve", "serve", "ping", "ping"}, pongs: 2},
		{name: "other text ignored", frames: []string{"hello", "PING", "Serve", "ping"}, pongs: 0},
		{name: "no frames", frames: nil, pongs: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p PingPong
			pongs := 0
			for _, frame := range tt.frames {
				reply, ok := p.Handle(frame)
				if ok {
					require.Equal(t, "pong", reply)
					pongs++
				}
			}
			require.Equal(t, tt.pongs, pongs)
		})
	}
}

func TestPingPong_ServedNeverResets(t *testing.T) {
	var p PingPong
	_, ok := p.Handle("ping")
	require.False(t, ok)

	p.Handle("serve")
	for _, frame := range []string{"ping", "unserve", "", "serve", "pong"} {
		p.Handle(frame)
		reply, ok := p.Handle("ping")
		require.True(t, ok, "no pong after %q", frame)
		require.Equal(t, "pong", reply)
	}
}

func TestPingHandler_GatesPong(t *testing.T) {
	_, ts := startTestServer(t, testConfig())
	conn := dial(t, wsURL(ts, "/19/ws/ping"), nil)

	for _, frame := range []string{"ping", "serve", "ping"} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	require.Equal(t, "pong", string(data))

	expectNoMessage(t, conn, 200*time.Millisecond)
}

func TestPingHandler_ConnectionsAreIndependent(t *testing.T) {
	_, ts := startTestServer(t, testConfig())
	served := dial(t, wsURL(ts, "/19/ws/ping"), nil)
	fresh := dial(t, wsURL(ts, "/19/ws/ping"), nil)

	require.NoError(t, served.WriteMessage(websocket.TextMessage, []byte("serve")))
	require.NoError(t, served.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, served.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := served.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "pong", string(data))

	require.NoError(t, fresh.WriteMessage(websocket.TextMessage, []byte("ping")))
	expectNoMessage(t, fresh, 200*time.Millisecond)
}
