// Package server constructs the chat service: the registry, the broadcast
// counter and the HTTP surface that starts sessions on top of them.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Server ties the registry, counter and HTTP handlers together and tracks
// every connection goroutine so shutdown can wait for them.
type Server struct {
	cfg        Config
	counter    *BroadcastCounter
	registry   *Registry
	origins    *originPolicy
	upgrader   websocket.Upgrader
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New creates a Server for cfg and starts its registry.
func New(cfg Config) *Server {
	cfg = sanitizeConfig(cfg)
	counter := &BroadcastCounter{}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		counter:  counter,
		registry: NewRegistry(counter, cfg.MailboxSize),
		origins:  newOriginPolicy(cfg.AllowedOrigins),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}

	s.httpServer = CreateServer(cfg.Port, s.routes())

	go s.registry.Run()
	slog.Info("registry started and ready to manage chat sessions")
	return s
}

// Registry returns the connection registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Counter returns the broadcast counter reported by /19/views.
func (s *Server) Counter() *BroadcastCounter {
	return s.counter
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	return s.cfg
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// track runs fn as a tracked connection goroutine. It returns false once
// shutdown has begun.
func (s *Server) track(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		fn(s.ctx)
	}()
	return true
}

// ListenAndServe serves HTTP on the configured port until Shutdown.
func (s *Server) ListenAndServe() error {
	err := StartServer(s.httpServer)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, closes every open session and stops
// the registry once sessions have sent their Disconnect. It gives up when
// ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := ShutdownServer(ctx, s.httpServer); err != nil {
		firstErr = err
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all chat connections closed")
	case <-ctx.Done():
		slog.Warn("shutdown timeout reached, some connections may still be open")
		if firstErr == nil {
			firstErr = ctx.Err()
		}
	}

	s.registry.Stop()
	return firstErr
}
