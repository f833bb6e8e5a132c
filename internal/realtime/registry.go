// Package realtime pushes error and alert notifications to connected operators.
package realtime

import (
	"errors"
	"strings"
	"sync"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
)

var (
	// ErrConnectionUnauthorized rejects a handshake without a valid identity.
	ErrConnectionUnauthorized = errors.New("realtime: connection unauthorized")
	// ErrDuplicateConnection is returned when a connection id is already registered.
	ErrDuplicateConnection = errors.New("realtime: duplicate connection id")
	// ErrUnknownConnection is returned for group operations on unregistered connections.
	ErrUnknownConnection = errors.New("realtime: unknown connection")
	// ErrInvalidGroup is returned for an empty group name.
	ErrInvalidGroup = errors.New("realtime: invalid group")
)

// Sink receives serialized frames for one connection.
type Sink interface {
	// Deliver queues frame without blocking.
	Deliver(frame []byte) error
	// Close tears down the underlying transport.
	Close()
}

// Member is a registered connection.
type Member struct {
	ID       string
	Identity security.Identity
	Sink     Sink
}

// registryEntry tracks a member and the groups it joined.
type registryEntry struct {
	member Member
	groups map[string]struct{}
}

// Registry maps groups to connections and connections to identities.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*registryEntry
	groups map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*registryEntry),
		groups: make(map[string]map[string]struct{}),
	}
}

// Connect registers a connection for identity.
func (r *Registry) Connect(id string, identity security.Identity, sink Sink) error {
	id = strings.TrimSpace(id)
	if id == "" || !identity.Valid() || sink == nil {
		return ErrConnectionUnauthorized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[id]; exists {
		return ErrDuplicateConnection
	}
	r.conns[id] = &registryEntry{
		member: Member{ID: id, Identity: identity, Sink: sink},
		groups: make(map[string]struct{}),
	}
	return nil
}

// Join adds the connection to group. Joining twice is a no-op.
func (r *Registry) Join(id, group string) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return ErrInvalidGroup
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]struct{})
		r.groups[group] = members
	}
	members[id] = struct{}{}
	entry.groups[group] = struct{}{}
	return nil
}

// Leave removes the connection from group. Leaving a group it never joined is a no-op.
func (r *Registry) Leave(id, group string) error {
	group = strings.TrimSpace(group)
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	delete(entry.groups, group)
	r.removeFromGroupLocked(id, group)
	return nil
}

// Disconnect drops the connection from every group and forgets its identity.
func (r *Registry) Disconnect(id string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[id]
	if !ok {
		return Member{}, false
	}
	for group := range entry.groups {
		r.removeFromGroupLocked(id, group)
	}
	delete(r.conns, id)
	return entry.member, true
}

func (r *Registry) removeFromGroupLocked(id, group string) {
	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// DisconnectAll empties the registry and returns the members it held.
func (r *Registry) DisconnectAll() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Member, 0, len(r.conns))
	for _, entry := range r.conns {
		out = append(out, entry.member)
	}
	r.conns = make(map[string]*registryEntry)
	r.groups = make(map[string]map[string]struct{})
	return out
}

// MembersOf returns a snapshot of the group's members.
func (r *Registry) MembersOf(group string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.groups[group]
	out := make([]Member, 0, len(members))
	for id := range members {
		if entry, ok := r.conns[id]; ok {
			out = append(out, entry.member)
		}
	}
	return out
}

// GroupsOf returns the groups a connection has joined.
func (r *Registry) GroupsOf(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.groups))
	for group := range entry.groups {
		out = append(out, group)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
