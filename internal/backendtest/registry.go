package backendtest

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// registry tracks the live websocket connections of the fake backend.
type registry struct {
	mu     sync.RWMutex
	active map[int]*websocket.Conn
	next   int
	total  int
}

func newRegistry() *registry {
	return &registry{active: make(map[int]*websocket.Conn)}
}

// register adds conn and returns its id.
func (r *registry) register(conn *websocket.Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.total++
	r.active[r.next] = conn
	slog.Debug("Backend connection registered", "conn_id", r.next)
	return r.next
}

// unregister removes the connection with id.
func (r *registry) unregister(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[id]; ok {
		delete(r.active, id)
		slog.Debug("Backend connection unregistered", "conn_id", id)
	}
}

// snapshot returns the live connections.
func (r *registry) snapshot() []*websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*websocket.Conn, 0, len(r.active))
	for _, c := range r.active {
		out = append(out, c)
	}
	return out
}

// counts returns the number of live connections and of connections ever accepted.
func (r *registry) counts() (live, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active), r.total
}

// dropAll abruptly terminates every live connection, the way a network
// failure would.
func (r *registry) dropAll() int {
	conns := r.snapshot()
	for _, conn := range conns {
		_ = conn.CloseNow()
	}
	slog.Debug("Backend connections dropped", "count", len(conns))
	return len(conns)
}
