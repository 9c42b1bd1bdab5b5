// Package server manages individual chat sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Session adapts one WebSocket connection to the registry protocol. Its room
// and display name are fixed when the connection is upgraded.
type Session struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	registry *Registry
	id       SessionID
	room     RoomID
	name     string
	addr     string
	limiter  *rate.Limiter
	cfg      Config
}

// NewSession creates a Session for conn that will join room as name.
func NewSession(conn *websocket.Conn, registry *Registry, room RoomID, name, addr string, cfg Config) *Session {
	cfg = sanitizeConfig(cfg)
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Session{
		conn:     conn,
		send:     make(chan []byte, cfg.SendBufferSize),
		done:     make(chan struct{}),
		registry: registry,
		room:     room,
		name:     name,
		addr:     addr,
		limiter:  newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		cfg:      cfg,
	}
}

// ID returns the id assigned by the registry, or the zero id before Serve
// has connected.
func (s *Session) ID() SessionID {
	return s.id
}

// Deliver queues payload for the connection without blocking. It reports
// false once the session has stopped or when its send buffer is full.
func (s *Session) Deliver(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Serve connects the session to the registry, joins its room and pumps
// frames until the connection closes or ctx is cancelled. Disconnect is
// sent on every return path once an id has been assigned.
func (s *Session) Serve(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	id, err := s.registry.Connect(connectCtx, s)
	cancel()
	if err != nil {
		s.stop()
		s.closeConnection()
		return fmt.Errorf("connect session from %s: %w", s.addr, err)
	}
	s.id = id
	defer s.registry.Disconnect(id)

	s.registry.Join(id, s.room)
	slog.Info("chat session started", "session", id, "room", s.room, "user", s.name, "addr", s.addr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx)
	}()
	defer func() {
		s.stop()
		<-writerDone
		slog.Info("chat session ended", "session", id, "room", s.room, "user", s.name)
	}()

	return s.readPump()
}

func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
		slog.Debug("error setting initial read deadline", "addr", s.addr, "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})
}

// logReadError classifies the error that ended the read loop.
func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("message exceeded maximum size", "addr", s.addr, "limit", s.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		slog.Debug("client disconnected", "addr", s.addr, "error", err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isExpectedCloseError(err):
		slog.Debug("client connection closed", "addr", s.addr, "error", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		slog.Warn("unexpected websocket close", "addr", s.addr, "error", err)
	default:
		slog.Warn("websocket read error", "addr", s.addr, "error", err)
	}
}

// checkRateLimit reports whether the next inbound message may be processed.
func (s *Session) checkRateLimit() bool {
	if s.limiter != nil && !s.limiter.Allow() {
		slog.Warn("rate limit exceeded; discarding message",
			"addr", s.addr, "burst", s.cfg.RateLimit.Burst, "interval", s.cfg.RateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage relays one inbound frame to the room and echoes it back to
// the sender. A malformed frame is returned as an error and ends the session.
func (s *Session) processMessage(raw []byte) error {
	message, err := decodeInboundFrame(raw)
	if err != nil {
		return err
	}

	payload, err := encodeOutboundFrame(s.name, message)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	s.registry.Relay(s.id, s.room, payload)
	if !s.Deliver(payload) {
		slog.Debug("local echo dropped", "session", s.id)
	}
	return nil
}

func (s *Session) readPump() error {
	defer s.closeConnection()

	s.setupReadConnection()

	for {
		messageType, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return nil
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if !s.checkRateLimit() {
			continue
		}

		if err := s.processMessage(raw); err != nil {
			slog.Warn("closing session after protocol error", "session", s.id, "addr", s.addr, "error", err)
			return err
		}
	}
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for {
		select {
		case payload := <-s.send:
			if !s.writeFrame(websocket.TextMessage, payload) {
				return
			}
		case <-ticker.C:
			if !s.writeFrame(websocket.PingMessage, nil) {
				return
			}
		case <-ctx.Done():
			s.writeCloseMessage(websocket.CloseGoingAway, "server shutting down")
			return
		case <-s.done:
			return
		}
	}
}

// writeFrame writes one frame under the write deadline and reports whether
// the pump should continue.
func (s *Session) writeFrame(messageType int, data []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		slog.Debug("error setting write deadline", "addr", s.addr, "error", err)
		return false
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("error writing to client", "addr", s.addr, "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client
func (s *Session) writeCloseMessage(code int, text string) {
	deadline := time.Now().Add(s.cfg.WriteWait)
	if err := s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		if !isExpectedCloseError(err) {
			slog.Debug("error writing close message", "addr", s.addr, "error", err)
		}
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (s *Session) closeConnection() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		slog.Debug("error closing connection", "addr", s.addr, "error", err)
	}
}
