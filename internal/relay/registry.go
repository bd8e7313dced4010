package relay

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Sender is the outbound half of a live transport connection.
//
// TrySend queues data for delivery and must never block: a slow or
// broken peer returns false (frame dropped) rather than stalling the
// caller. Writable reports whether the transport can still accept
// frames at all.
type Sender interface {
	TrySend(data []byte) bool
	Writable() bool
}

// Conn is the registry's record of one live connection.
type Conn struct {
	ID       string
	Role     Role
	Identity string // observer user id, empty until bound
	sender   Sender
}

// TrySend forwards to the underlying transport.
func (c *Conn) TrySend(data []byte) bool {
	return c.sender.TrySend(data)
}

// Registry tracks live connections and their roles.
//
// It is safe for concurrent use from independent transport callbacks.
// All mutation is serialised internally; callers never hold external
// locks. Connections are never persisted; the registry is empty after
// restart.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register records a new connection in the Unknown role and returns its id.
func (r *Registry) Register(sender Sender) string {
	id := "conn-" + uuid.NewString()[:8]

	r.mu.Lock()
	r.conns[id] = &Conn{ID: id, Role: RoleUnknown, sender: sender}
	r.mu.Unlock()

	return id
}

// Classify transitions a connection from Unknown to the given role.
//
// A second classification for the same connection, or a role other than
// Device/Observer, is a protocol violation.
func (r *Registry) Classify(id string, role Role) error {
	if role != RoleDevice && role != RoleObserver {
		return fmt.Errorf("%w: cannot classify as %q", ErrProtocol, role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	if conn.Role != RoleUnknown {
		return fmt.Errorf("%w: connection already classified as %q", ErrProtocol, conn.Role)
	}

	conn.Role = role
	return nil
}

// BindIdentity attaches an authenticated user id to an observer connection.
//
// Legal only after the connection has been classified Observer; binding
// on a device or unclassified connection is a protocol violation.
// Rebinding replaces the previous identity.
func (r *Registry) BindIdentity(id, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	if conn.Role != RoleObserver {
		return fmt.Errorf("%w: identity binding requires observer role, have %q", ErrProtocol, conn.Role)
	}

	conn.Identity = identity
	return nil
}

// Unregister removes a connection. Idempotent: removing an already-gone
// id is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Role returns the current role of a connection.
func (r *Registry) Role(id string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	if !ok {
		return RoleUnknown, ErrUnknownConnection
	}
	return conn.Role, nil
}

// Identity returns the bound identity of a connection (empty if unbound).
func (r *Registry) Identity(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if conn, ok := r.conns[id]; ok {
		return conn.Identity
	}
	return ""
}

// ForEachByRole applies fn to every live connection in the given role.
//
// Iteration runs over an immutable membership snapshot taken under the
// lock, so concurrent connect/disconnect cannot invalidate it.
// Connections whose transport is no longer writable are skipped; they
// are reaped by their own transport teardown, not here.
func (r *Registry) ForEachByRole(role Role, fn func(conn *Conn)) {
	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		if conn.Role == role {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		if !conn.sender.Writable() {
			continue
		}
		fn(conn)
	}
}

// Count returns the number of live connections in the given role.
func (r *Registry) Count(role Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, conn := range r.conns {
		if conn.Role == role {
			n++
		}
	}
	return n
}
