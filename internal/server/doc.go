// Package server implements the roomchat HTTP and WebSocket service.
//
// A single Registry goroutine owns the session table and room membership and
// processes Connect, Disconnect, Join and Relay messages one at a time. Each
// upgraded chat connection runs a Session that registers itself, joins the
// room named in its URL and relays inbound frames through the registry. The
// ping-pong endpoint is independent of the registry and keeps only
// per-connection state.
package server
