package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/roomchat/internal/server"
)

func newConnectCmd(serverURL *string) *cobra.Command {
	var (
		room int32
		user string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a room and chat from the terminal",
		Long: `Join a room and chat from the terminal. Each line read from stdin is sent
as one message; messages from the room are printed as they arrive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			return runConnect(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), *serverURL, server.RoomID(room), user)
		},
	}

	cmd.Flags().Int32Var(&room, "room", 1, "room to join")
	cmd.Flags().StringVar(&user, "user", "", "display name")

	return cmd
}

// chatURL builds the WebSocket URL of a room from the server's HTTP URL.
func chatURL(base string, room server.RoomID, user string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	prefix := strings.TrimSuffix(u.Path, "/") + server.RoutePrefix
	u.Path = prefix + "/ws/room/" + strconv.FormatInt(int64(room), 10) + "/user/" + user
	u.RawPath = prefix + "/ws/room/" + strconv.FormatInt(int64(room), 10) + "/user/" + url.PathEscape(user)
	return u.String(), nil
}

func runConnect(ctx context.Context, in io.Reader, out io.Writer, base string, room server.RoomID, user string) error {
	wsURL, err := chatURL(base, room, user)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	output := termenv.NewOutput(out)
	nameColor := output.Color("#50FA7B")

	readErr := make(chan error, 1)
	go func() {
		for {
			var frame server.OutboundFrame
			if err := conn.ReadJSON(&frame); err != nil {
				readErr <- err
				return
			}
			name := output.String(frame.User).Foreground(nameColor).Bold()
			fmt.Fprintf(out, "%s: %s\n", name, frame.Message)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	lines := scanLines(in, done)

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return closeChat(conn, readErr)
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := conn.WriteJSON(server.InboundFrame{Message: &line}); err != nil {
				return fmt.Errorf("send message: %w", err)
			}

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)

		case <-ctx.Done():
			return closeChat(conn, readErr)
		}
	}
}

// scanLines emits each line read from in until in is exhausted or done is
// closed. The returned channel is closed when scanning stops.
func scanLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

// closeChat sends a close frame and waits briefly for the server to answer
// so frames already in flight are still printed.
func closeChat(conn *websocket.Conn, readErr <-chan error) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		return nil
	}
	select {
	case <-readErr:
	case <-time.After(2 * time.Second):
	}
	return nil
}
