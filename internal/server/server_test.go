package server

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestServer_ShutdownClosesSessions(t *testing.T) {
	req := require.New(t)
	srv, ts := startTestServer(t, testConfig())

	chat := dialRoom(t, ts, 1, "A")
	ping := dial(t, wsURL(ts, "/19/ws/ping"), nil)
	waitForMembers(t, srv.Registry(), 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(srv.Shutdown(ctx))

	req.NoError(chat.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := chat.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	req.NoError(ping.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = ping.ReadMessage()
	req.Error(err)

	_, err = srv.Registry().Connect(context.Background(), &recordingOutbound{})
	req.ErrorIs(err, ErrRegistryUnavailable)
}

func TestServer_RejectsConnectionsAfterShutdown(t *testing.T) {
	srv, ts := startTestServer(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	conn, resp, err := websocketDialer().Dial(wsURL(ts, "/19/ws/room/1/user/late"), nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
