// Package server coordinates session registration, room membership and
// room-scoped fan-out through the Registry type.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Outbound is the registry's handle for delivering a payload to one session.
// The registry only looks handles up; it never closes or owns the
// connection behind them. Deliver must not block.
type Outbound interface {
	Deliver(payload []byte) bool
}

type (
	connectMsg struct {
		out   Outbound
		reply chan SessionID
	}
	disconnectMsg struct {
		id SessionID
	}
	joinMsg struct {
		id   SessionID
		room RoomID
	}
	relayMsg struct {
		id   SessionID
		room RoomID
		text []byte
	}
	membersMsg struct {
		room  RoomID
		reply chan []SessionID
	}
	countMsg struct {
		reply chan int
	}
)

// Registry owns the session table and room membership. All of its state is
// touched only by the goroutine running Run, which processes one mailbox
// message at a time in arrival order.
type Registry struct {
	sessions map[SessionID]Outbound
	rooms    map[RoomID]map[SessionID]struct{}
	mailbox  chan any
	counter  *BroadcastCounter
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRegistry creates a Registry whose mailbox holds up to mailboxSize
// pending messages. Relays increment counter.
func NewRegistry(counter *BroadcastCounter, mailboxSize int) *Registry {
	if mailboxSize < 0 {
		mailboxSize = 0
	}
	if counter == nil {
		counter = &BroadcastCounter{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		sessions: make(map[SessionID]Outbound),
		rooms:    make(map[RoomID]map[SessionID]struct{}),
		mailbox:  make(chan any, mailboxSize),
		counter:  counter,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Counter returns the broadcast counter this registry increments.
func (r *Registry) Counter() *BroadcastCounter {
	return r.counter
}

// Run processes mailbox messages until Stop is called. It should be
// called in its own goroutine.
func (r *Registry) Run() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			slog.Info("registry stopped", "sessions", len(r.sessions))
			return

		case msg := <-r.mailbox:
			r.handle(msg)
		}
	}
}

// Stop terminates Run and waits for it to return. Sends issued afterwards
// are dropped and Connect reports ErrRegistryUnavailable.
func (r *Registry) Stop() {
	r.cancel()
	<-r.done
}

func (r *Registry) handle(msg any) {
	switch m := msg.(type) {
	case connectMsg:
		id := uuid.New()
		r.sessions[id] = m.out
		m.reply <- id
		slog.Debug("session connected", "session", id, "total", len(r.sessions))

	case disconnectMsg:
		r.handleDisconnect(m.id)

	case joinMsg:
		r.handleJoin(m.id, m.room)

	case relayMsg:
		r.handleRelay(m)

	case membersMsg:
		m.reply <- lo.Keys(r.rooms[m.room])

	case countMsg:
		m.reply <- len(r.sessions)

	default:
		slog.Warn("registry received unknown message", "type", fmt.Sprintf("%T", msg))
	}
}

// handleDisconnect removes id from the table and from every room.
func (r *Registry) handleDisconnect(id SessionID) {
	delete(r.sessions, id)
	r.leaveAllRooms(id)
	slog.Debug("session disconnected", "session", id, "total", len(r.sessions))
}

// handleJoin moves id into room, leaving whichever room held it before.
func (r *Registry) handleJoin(id SessionID, room RoomID) {
	r.leaveAllRooms(id)

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[SessionID]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
	slog.Debug("session joined room", "session", id, "room", room, "members", len(members))
}

func (r *Registry) leaveAllRooms(id SessionID) {
	for _, members := range r.rooms {
		delete(members, id)
	}
}

// handleRelay fans text out to every other member of the room that still has
// a session entry, then counts the relay once.
func (r *Registry) handleRelay(m relayMsg) {
	delivered := 0
	for member := range r.rooms[m.room] {
		if member == m.id {
			continue
		}
		out, ok := r.sessions[member]
		if !ok {
			continue
		}
		if out.Deliver(m.text) {
			delivered++
		} else {
			slog.Debug("relay dropped", "session", member, "room", m.room)
		}
	}
	r.counter.Increment()
	slog.Debug("relayed message", "from", m.id, "room", m.room, "delivered", delivered)
}

// post hands msg to the mailbox without waiting for it to be processed.
func (r *Registry) post(msg any) bool {
	select {
	case r.mailbox <- msg:
		return true
	case <-r.done:
		return false
	}
}

// tryPost hands msg to the mailbox only if there is room for it now.
func (r *Registry) tryPost(msg any) bool {
	select {
	case r.mailbox <- msg:
		return true
	default:
		return false
	}
}

// Connect registers out and returns the id assigned to it. It blocks until
// the registry answers, ctx ends or the registry stops.
func (r *Registry) Connect(ctx context.Context, out Outbound) (SessionID, error) {
	reply := make(chan SessionID, 1)

	select {
	case r.mailbox <- connectMsg{out: out, reply: reply}:
	case <-r.done:
		return SessionID{}, ErrRegistryUnavailable
	case <-ctx.Done():
		return SessionID{}, ErrRegistryUnavailable
	}

	select {
	case id := <-reply:
		return id, nil
	case <-r.done:
		return SessionID{}, ErrRegistryUnavailable
	case <-ctx.Done():
		// The registry may still assign an id nobody will use; drop it.
		go r.discardReply(reply)
		return SessionID{}, ErrRegistryUnavailable
	}
}

func (r *Registry) discardReply(reply <-chan SessionID) {
	select {
	case id := <-reply:
		r.Disconnect(id)
	case <-r.done:
	}
}

// Disconnect removes id from the session table and from every room.
// Unknown ids are ignored.
func (r *Registry) Disconnect(id SessionID) {
	r.post(disconnectMsg{id: id})
}

// Join places id in room after removing it from any other room.
func (r *Registry) Join(id SessionID, room RoomID) {
	r.post(joinMsg{id: id, room: room})
}

// Relay delivers text to every member of room except id. It never blocks
// the caller: when the mailbox is full the relay is dropped and logged.
func (r *Registry) Relay(id SessionID, room RoomID, text []byte) {
	if !r.tryPost(relayMsg{id: id, room: room, text: text}) {
		slog.Warn("registry mailbox full; relay dropped", "session", id, "room", room)
	}
}

// Members returns the ids currently in room, in no particular order.
func (r *Registry) Members(ctx context.Context, room RoomID) ([]SessionID, error) {
	reply := make(chan []SessionID, 1)
	if err := r.ask(ctx, membersMsg{room: room, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case ids := <-reply:
		return ids, nil
	case <-r.done:
		return nil, ErrRegistryUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SessionCount returns the number of entries in the session table.
func (r *Registry) SessionCount(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := r.ask(ctx, countMsg{reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-r.done:
		return 0, ErrRegistryUnavailable
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Registry) ask(ctx context.Context, msg any) error {
	select {
	case r.mailbox <- msg:
		return nil
	case <-r.done:
		return ErrRegistryUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}
