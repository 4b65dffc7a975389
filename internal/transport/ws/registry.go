package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/chat/internal/domain"
)

type Conn interface {
	// Send must not block. A full or closed connection returns errs.ErrDeliveryFailed.
	Send(data []byte) error
	Close() error
	CloseWith(code int, reason string)
	Identity() domain.Identity
}

// Registry is the set of live connections. The same identity may hold several entries.
type Registry struct {
	mu    sync.RWMutex
	conns map[Conn]struct{}

	// broadcasts are serialized so every connection sees the same order
	bcast sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[Conn]struct{})}
}

func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	n := len(r.conns)
	r.mu.Unlock()

	id := c.Identity()
	slog.Debug("ws registered", slog.String("user_id", id.UserID.String()), slog.Int("connections", n))
}

// Unregister is idempotent and reports whether c was present.
func (r *Registry) Unregister(c Conn) bool {
	r.mu.Lock()
	_, ok := r.conns[c]
	delete(r.conns, c)
	n := len(r.conns)
	r.mu.Unlock()

	if ok {
		id := c.Identity()
		slog.Debug("ws unregistered", slog.String("user_id", id.UserID.String()), slog.Int("connections", n))
	}
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast hands msg to every registered connection and returns how many accepted it.
// Connections that cannot accept are unregistered and closed; the rest are unaffected.
func (r *Registry) Broadcast(msg Message) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	r.bcast.Lock()
	defer r.bcast.Unlock()

	var failed []Conn
	delivered := 0
	for _, c := range r.snapshot() {
		if err := c.Send(data); err != nil {
			failed = append(failed, c)
			continue
		}
		delivered++
	}

	for _, c := range failed {
		if r.Unregister(c) {
			id := c.Identity()
			slog.Warn("ws delivery failed, dropping connection", slog.String("user_id", id.UserID.String()))
		}
		_ = c.Close()
	}

	return delivered, nil
}

// CloseAll закрывает все соединения при остановке сервера.
func (r *Registry) CloseAll() {
	for _, c := range r.snapshot() {
		r.Unregister(c)
		c.CloseWith(websocket.CloseGoingAway, "server shutting down")
	}
}
