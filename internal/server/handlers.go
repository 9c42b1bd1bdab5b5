// Package server exposes HTTP handlers, including WebSocket upgrades, the
// broadcast counter report, health checks, and the built-in test page.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// parseRoomID converts the {room} path segment into a RoomID.
func parseRoomID(raw string) (RoomID, error) {
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRoom, raw)
	}
	return RoomID(n), nil
}

// pathParam returns the decoded value of a chi URL parameter. chi matches
// against RawPath when it is set, so only then is the value still escaped.
func pathParam(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return value
	}
	if decoded, err := url.PathUnescape(value); err == nil {
		return decoded
	}
	return value
}

// ChatHandler upgrades a request for /ws/room/{room}/user/{user} and starts
// a chat session for it.
func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	room, err := parseRoomID(pathParam(r, "room"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user := pathParam(r, "user")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	addr := r.RemoteAddr
	session := NewSession(conn, s.registry, room, user, addr, s.cfg)
	started := s.track(func(ctx context.Context) {
		if err := session.Serve(ctx); err != nil {
			slog.Info("chat session closed with error", "addr", addr, "error", err)
		}
	})
	if !started {
		session.closeConnection()
	}
}

// PingHandler upgrades a request for /ws/ping and runs the ping-pong
// protocol on it.
func (s *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	addr := r.RemoteAddr
	if !s.track(func(ctx context.Context) { servePingPong(ctx, conn, addr, s.cfg) }) {
		_ = conn.Close()
	}
}

// ViewsHandler reports how many chat messages have been relayed.
func (s *Server) ViewsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, strconv.FormatUint(s.counter.Load(), 10))
}

// ResetHandler acknowledges a reset request. Sessions, rooms and the
// counter are left untouched.
func ResetHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "roomchat server is running!")
}

// TestPageHandler serves an HTML page that joins a room and chats over the
// WebSocket endpoint.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		slog.Warn("error writing HTML response", "error", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>roomchat test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>roomchat</h1>
    <div id="status" class="status disconnected">Disconnected</div>
    <div>
        <input type="text" id="room" placeholder="room" value="1" size="4">
        <input type="text" id="user" placeholder="name" value="guest">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>
    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.color = color;
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const room = encodeURIComponent(document.getElementById('room').value);
            const user = encodeURIComponent(document.getElementById('user').value);
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/19/ws/room/' + room + '/user/' + user);
            ws.onopen = function() { addLine('joined room ' + decodeURIComponent(room), 'gray'); updateStatus(true); };
            ws.onmessage = function(event) {
                const msg = JSON.parse(event.data);
                addLine(msg.user + ': ' + msg.message, 'green');
            };
            ws.onclose = function() { addLine('connection closed', 'gray'); updateStatus(false); ws = null; };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const message = messageInput.value;
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ message: message }));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
