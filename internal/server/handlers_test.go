package server

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func get(t *testing.T, method, url string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestViewsHandler_ReportsRelayCount(t *testing.T) {
	req := require.New(t)
	srv, ts := startTestServer(t, testConfig())

	resp, body := get(t, http.MethodGet, ts.URL+"/19/views")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("0", body)

	a := dialRoom(t, ts, 1, "A")
	waitForMembers(t, srv.Registry(), 1, 1)
	sendChat(t, a, "one")
	sendChat(t, a, "two")
	waitForCount(t, srv, 2)

	_, body = get(t, http.MethodGet, ts.URL+"/19/views")
	req.Equal("2", body)
}

func TestResetHandler_IsNoop(t *testing.T) {
	req := require.New(t)
	srv, ts := startTestServer(t, testConfig())

	a := dialRoom(t, ts, 1, "A")
	waitForMembers(t, srv.Registry(), 1, 1)
	sendChat(t, a, "counted")
	waitForCount(t, srv, 1)

	resp, _ := get(t, http.MethodPost, ts.URL+"/19/reset")
	req.Equal(http.StatusOK, resp.StatusCode)

	_, body := get(t, http.MethodGet, ts.URL+"/19/views")
	req.Equal("1", body)
	waitForMembers(t, srv.Registry(), 1, 1)
}

func TestResetHandler_RejectsGet(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	resp, _ := get(t, http.MethodGet, ts.URL+"/19/reset")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestChatHandler_InvalidRoom(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	for _, room := range []string{"abc", "1.5", "99999999999"} {
		t.Run(room, func(t *testing.T) {
			conn, resp, err := websocketDialer().Dial(wsURL(ts, "/19/ws/room/"+room+"/user/x"), nil)
			if conn != nil {
				_ = conn.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestChatHandler_RequiresUpgrade(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	resp, _ := get(t, http.MethodGet, ts.URL+"/19/ws/room/1/user/plain")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndTestPage(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	resp, body := get(t, http.MethodGet, ts.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	require.Equal(t, "roomchat server is running!", body)

	resp, body = get(t, http.MethodGet, ts.URL+"/test")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(body, "/19/ws/room/"))
}

func TestParseRoomID(t *testing.T) {
	id, err := parseRoomID("2147483647")
	require.NoError(t, err)
	require.Equal(t, RoomID(2147483647), id)

	_, err = parseRoomID("2147483648")
	require.ErrorIs(t, err, ErrInvalidRoom)
}
