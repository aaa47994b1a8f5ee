package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var errConnectionGone = errors.New("connection not registered")

const writeTimeout = 5 * time.Second

// Registry tracks live socket connections by connection id. It is the
// session layer's Broadcaster: events addressed to a connection that
// already dropped are reported, not delivered.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*websocket.Conn)}
}

func (r *Registry) Add(connectionID string, conn *websocket.Conn) {
	r.mu.Lock()
	r.conns[connectionID] = conn
	r.mu.Unlock()
}

func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	delete(r.conns, connectionID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send writes one enveloped event to a connection.
func (r *Registry) Send(connectionID, event string, payload interface{}) error {
	r.mu.RLock()
	conn, ok := r.conns[connectionID]
	r.mu.RUnlock()
	if !ok {
		return errConnectionGone
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, envelope{Event: event, Data: payload})
}

// envelope mirrors gamedto.Envelope on the write side, where Data is a
// concrete payload rather than raw JSON.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}
