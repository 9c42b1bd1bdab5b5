package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// recordingOutbound is an Outbound that keeps every payload it is given.
type recordingOutbound struct {
	mu       sync.Mutex
	payloads []string
}

func (o *recordingOutbound) Deliver(payload []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.payloads = append(o.payloads, string(payload))
	return true
}

func (o *recordingOutbound) received() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.payloads...)
}

// newRunningRegistry starts a registry that is stopped when the test ends.
func newRunningRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(&BroadcastCounter{}, 256)
	go r.Run()
	t.Cleanup(r.Stop)
	return r
}

func connectSession(t *testing.T, r *Registry, out Outbound) SessionID {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, err := r.Connect(ctx, out)
	require.NoError(t, err)
	return id
}

func members(t *testing.T, r *Registry, room RoomID) []SessionID {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ids, err := r.Members(ctx, room)
	require.NoError(t, err)
	return ids
}

func sessionCount(t *testing.T, r *Registry) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := r.SessionCount(ctx)
	require.NoError(t, err)
	return n
}

// testConfig is a configuration suited to fast end-to-end tests.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.AllowedOrigins = []string{"http://localhost:8080"}
	cfg.RateLimit.Burst = 100
	cfg.ConnectTimeout = time.Second
	cfg.WriteWait = time.Second
	return cfg
}

// startTestServer runs a Server behind httptest and shuts both down at the
// end of the test.
func startTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return srv, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func websocketDialer() *websocket.Dialer {
	return &websocket.Dialer{HandshakeTimeout: 2 * time.Second}
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	dialer := websocketDialer()
	conn, resp, err := dialer.Dial(url, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func dialRoom(t *testing.T, ts *httptest.Server, room int, user string) *websocket.Conn {
	t.Helper()
	return dial(t, wsURL(ts, "/19/ws/room/"+strconv.Itoa(room)+"/user/"+user), nil)
}

// waitForMembers blocks until room holds exactly n sessions.
func waitForMembers(t *testing.T, r *Registry, room RoomID, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(members(t, r, room)) == n
	}, 2*time.Second, 10*time.Millisecond, "room %d never reached %d members", room, n)
}

func sendChat(t *testing.T, conn *websocket.Conn, message string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":`+strconv.Quote(message)+`}`)))
}

func readFrame(t *testing.T, conn *websocket.Conn) OutboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame OutboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// expectNoMessage fails if conn receives any frame within timeout.
func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %q", data)
	}
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout(), "expected read timeout, got %v", err)
}
