package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryBindReplacesPreviousSession(t *testing.T) {
	reg := NewRegistry()
	first, _ := pipeSession(t, 4)
	second, _ := pipeSession(t, 4)

	require.Nil(t, reg.Bind("alice", first))
	displaced := reg.Bind("alice", second)
	require.Same(t, first, displaced)

	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	require.Same(t, second, got)

	select {
	case <-first.Done():
		t.Fatal("displaced session must stay open")
	default:
	}
}

func TestRegistryUnbindOnlyByOwner(t *testing.T) {
	reg := NewRegistry()
	first, _ := pipeSession(t, 4)
	second, _ := pipeSession(t, 4)
	reg.Bind("alice", first)
	reg.Bind("alice", second)

	require.False(t, reg.Unbind("alice", first))
	_, ok := reg.Lookup("alice")
	require.True(t, ok)

	require.True(t, reg.Unbind("alice", second))
	_, ok = reg.Lookup("alice")
	require.False(t, ok)
}

func TestRegistryUntrackRespectsOwnership(t *testing.T) {
	reg := NewRegistry()
	first, _ := pipeSession(t, 4)
	second, _ := pipeSession(t, 4)
	for _, s := range []*Session{first, second} {
		reg.Track(s)
		s.SetIdentity("alice")
	}
	reg.Bind("alice", first)
	reg.Bind("alice", second)

	reg.Untrack(first)
	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	require.Same(t, second, got)
	require.Len(t, reg.Sessions(), 1)

	reg.Untrack(second)
	require.Equal(t, 0, reg.Online())
	require.Empty(t, reg.Sessions())
}

func TestRegistryPushDropsAbsentIdentity(t *testing.T) {
	reg := NewRegistry()
	require.Equal(t, Offline, reg.Push("ghost", []byte("x")))
	require.False(t, reg.Bound("ghost"))

	s, _ := pipeSession(t, 4)
	reg.Bind("alice", s)
	require.True(t, reg.Bound("alice"))
	require.Equal(t, Queued, reg.Push("alice", []byte("x")))
	require.Len(t, s.send, 1)
}

func TestRegistryPushAfterDisplacementSkipsOldSession(t *testing.T) {
	reg := NewRegistry()
	first, _ := pipeSession(t, 4)
	second, _ := pipeSession(t, 4)
	reg.Bind("alice", first)
	reg.Bind("alice", second)

	require.Equal(t, Queued, reg.Push("alice", []byte("x")))
	require.Len(t, first.send, 0)
	require.Len(t, second.send, 1)
}

func TestRegistryPushToFullQueueIsDropped(t *testing.T) {
	reg := NewRegistry()
	s, _ := pipeSession(t, 1)
	reg.Bind("alice", s)

	require.Equal(t, Queued, reg.Push("alice", []byte("x")))
	require.Equal(t, Dropped, reg.Push("alice", []byte("y")))
	require.Eventually(t, func() bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
