// Package realtime implements the live message-delivery core: the registry
// mapping users to their open connections, and the per-connection session
// loop that ingests, persists and dispatches messages.
package realtime

import (
	"hash/fnv"
	"sync"

	"github.com/Kalyan-pallati/chat-app/internal/metrics"
)

// shardCount partitions the registry so unrelated users' traffic never
// contends on the same lock. Power of two.
const shardCount = 32

// Registry is the concurrency-safe map from user ID to that user's live
// connections. It is the only state shared between sessions; all mutation
// goes through Register, Unregister and Dispatch.
type Registry struct {
	shards [shardCount]registryShard
}

type registryShard struct {
	mu    sync.RWMutex
	users map[string]map[*Conn]struct{}
}

// NewRegistry creates an empty registry. One instance is created at process
// start; tests construct their own.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].users = make(map[string]map[*Conn]struct{})
	}
	return r
}

func (r *Registry) shard(userID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &r.shards[h.Sum32()&(shardCount-1)]
}

// Register adds a connection to the user's set, creating the set if absent.
// Idempotent per connection.
func (r *Registry) Register(userID string, c *Conn) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		conns = make(map[*Conn]struct{})
		s.users[userID] = conns
	}
	if _, dup := conns[c]; !dup {
		conns[c] = struct{}{}
		metrics.LiveConnections.Inc()
	}
}

// Unregister removes a connection from the user's set, dropping the set when
// it empties. A no-op if the connection or user is already gone, so racing
// disconnect paths never fail.
func (r *Registry) Unregister(userID string, c *Conn) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		return
	}
	if _, present := conns[c]; !present {
		return
	}
	delete(conns, c)
	metrics.LiveConnections.Dec()
	if len(conns) == 0 {
		delete(s.users, userID)
	}
}

// Online reports whether the user has at least one registered connection.
func (r *Registry) Online(userID string) bool {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

// ConnectionCount returns the number of registered connections across all
// users.
func (r *Registry) ConnectionCount() int {
	total := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, conns := range s.users {
			total += len(conns)
		}
		s.mu.RUnlock()
	}
	return total
}

// Dispatch delivers a payload to every connection currently registered to the
// user. Deliveries are independent: a dead or backed-up connection is killed
// (its own teardown unregisters it) and never blocks delivery to siblings or
// surfaces an error to the caller. No registered connections is a silent
// no-op; the message is already durable.
func (r *Registry) Dispatch(userID string, payload []byte) {
	s := r.shard(userID)

	// Snapshot under the read lock, deliver outside it, so a delivery can
	// never hold up registration traffic on this shard.
	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.users[userID]))
	for c := range s.users[userID] {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if c.deliver(payload) {
			metrics.MessagesDelivered.Inc()
		} else {
			metrics.MessagesDropped.Inc()
			c.Kill()
		}
	}
}
