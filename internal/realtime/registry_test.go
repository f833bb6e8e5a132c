package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed bool
}

func (s *memorySink) Deliver(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *memorySink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *memorySink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var (
	admin  = security.Identity{UserID: 1, Username: "alice", Role: security.RoleAdmin}
	viewer = security.Identity{UserID: 2, Username: "bob", Role: security.RoleViewer}
)

func TestRegistryConnectRejectsInvalidIdentity(t *testing.T) {
	registry := NewRegistry()
	require.ErrorIs(t, registry.Connect("c1", security.Identity{}, &memorySink{}), ErrConnectionUnauthorized)
	require.ErrorIs(t, registry.Connect("c1", security.Identity{UserID: 3}, &memorySink{}), ErrConnectionUnauthorized)
	require.ErrorIs(t, registry.Connect("", admin, &memorySink{}), ErrConnectionUnauthorized)
	require.Equal(t, 0, registry.Len())

	require.NoError(t, registry.Connect("c1", admin, &memorySink{}))
	require.ErrorIs(t, registry.Connect("c1", viewer, &memorySink{}), ErrDuplicateConnection)
}

func TestRegistryJoinRequiresConnection(t *testing.T) {
	registry := NewRegistry()
	require.ErrorIs(t, registry.Join("ghost", "app_1"), ErrUnknownConnection)

	require.NoError(t, registry.Connect("c1", viewer, &memorySink{}))
	require.ErrorIs(t, registry.Join("c1", " "), ErrInvalidGroup)
	require.NoError(t, registry.Join("c1", "app_42"))
	require.NoError(t, registry.Join("c1", "app_42"))
	require.Len(t, registry.MembersOf("app_42"), 1)
}

func TestRegistryLeaveAndDisconnect(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Connect("c1", admin, &memorySink{}))
	require.NoError(t, registry.Connect("c2", viewer, &memorySink{}))
	require.NoError(t, registry.Join("c1", "app_42"))
	require.NoError(t, registry.Join("c1", "app_7"))
	require.NoError(t, registry.Join("c2", "app_42"))

	require.NoError(t, registry.Leave("c1", "app_99"))
	require.NoError(t, registry.Leave("c1", "app_42"))
	members := registry.MembersOf("app_42")
	require.Len(t, members, 1)
	require.Equal(t, "c2", members[0].ID)

	member, ok := registry.Disconnect("c1")
	require.True(t, ok)
	require.Equal(t, admin, member.Identity)
	require.Empty(t, registry.MembersOf("app_7"))
	require.Nil(t, registry.GroupsOf("c1"))
	require.Equal(t, 1, registry.Len())

	_, ok = registry.Disconnect("c1")
	require.False(t, ok)
}

func TestRegistryConcurrentJoins(t *testing.T) {
	registry := NewRegistry()
	const connections = 64
	for i := 0; i < connections; i++ {
		require.NoError(t, registry.Connect(fmt.Sprintf("c%d", i), viewer, &memorySink{}))
	}

	var wg sync.WaitGroup
	for i := 0; i < connections; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = registry.Join(id, "app_10")
			_ = registry.Join(id, "app_11")
			_ = registry.Leave(id, "app_11")
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	require.Len(t, registry.MembersOf("app_10"), connections)
	require.Empty(t, registry.MembersOf("app_11"))
}

func TestRegistryDisconnectAll(t *testing.T) {
	registry := NewRegistry()
	sinks := []*memorySink{{}, {}}
	require.NoError(t, registry.Connect("c1", admin, sinks[0]))
	require.NoError(t, registry.Connect("c2", viewer, sinks[1]))
	require.NoError(t, registry.Join("c1", SystemGroup))
	require.NoError(t, registry.Join("c2", GroupForApplication(3)))

	members := registry.DisconnectAll()
	require.Len(t, members, 2)
	require.Equal(t, 0, registry.Len())
	require.Empty(t, registry.MembersOf(SystemGroup))
	require.Empty(t, registry.MembersOf(GroupForApplication(3)))
	require.ErrorIs(t, registry.Join("c1", SystemGroup), ErrUnknownConnection)
	require.Empty(t, registry.DisconnectAll())
}
