package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func drain(c *Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-c.Outbound():
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestDispatchReachesRegisteredConnections(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	a := NewConn()
	b := NewConn()
	r.Register("user-1", a)
	r.Register("user-1", b)

	r.Dispatch("user-1", []byte("hello"))

	req.Len(drain(a), 1)
	req.Len(drain(b), 1)
}

func TestRegisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	c := NewConn()
	r.Register("user-1", c)
	r.Register("user-1", c)

	r.Dispatch("user-1", []byte("once"))

	// One registration, one delivery
	req.Len(drain(c), 1)
	req.Equal(1, r.ConnectionCount())
}

func TestUnregisterStopsDelivery(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	a := NewConn()
	b := NewConn()
	r.Register("user-1", a)
	r.Register("user-1", b)

	r.Unregister("user-1", a)
	r.Dispatch("user-1", []byte("hello"))

	req.Empty(drain(a))
	req.Len(drain(b), 1)
}

func TestUnregisterUnknownIsNoOp(t *testing.T) {
	r := NewRegistry()

	// Neither the user nor the connection was ever registered.
	r.Unregister("ghost", NewConn())

	c := NewConn()
	r.Register("user-1", c)
	r.Unregister("user-1", NewConn())
	r.Unregister("user-1", c)
	r.Unregister("user-1", c)

	require.False(t, r.Online("user-1"))
}

func TestOnlineTracksEmptySetRemoval(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	c := NewConn()
	req.False(r.Online("user-1"))

	r.Register("user-1", c)
	req.True(r.Online("user-1"))

	r.Unregister("user-1", c)
	req.False(r.Online("user-1"))
}

func TestDispatchToOfflineUserIsSilent(t *testing.T) {
	r := NewRegistry()
	// Must not panic or error
	r.Dispatch("nobody", []byte("void"))
}

func TestSlowConnectionIsKilledNotBlocking(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	slow := NewConn()
	healthy := NewConn()
	r.Register("user-1", slow)
	r.Register("user-1", healthy)

	// Fill the slow connection's buffer without draining it.
	for i := 0; i < sendBufferSize; i++ {
		r.Dispatch("user-1", []byte("fill"))
		drain(healthy)
	}

	// The next dispatch must not block, must still reach the healthy
	// connection, and must kill the backed-up one.
	r.Dispatch("user-1", []byte("over"))

	req.Len(drain(healthy), 1)
	select {
	case <-slow.Done():
	default:
		t.Fatal("backed-up connection was not killed")
	}
}

func TestDeliveryToDeadConnectionFails(t *testing.T) {
	req := require.New(t)
	c := NewConn()
	c.Kill()
	req.False(c.deliver([]byte("late")))

	// Kill is idempotent
	c.Kill()
}

func TestConcurrentRegistryAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%4)
			for j := 0; j < 200; j++ {
				c := NewConn()
				r.Register(user, c)
				r.Dispatch(user, []byte("x"))
				drain(c)
				r.Unregister(user, c)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		require.False(t, r.Online(fmt.Sprintf("user-%d", i)))
	}
}

func TestMultiDeviceDispatch(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	phone := NewConn()
	laptop := NewConn()
	r.Register("user-2", phone)
	r.Register("user-2", laptop)

	r.Dispatch("user-2", []byte(`{"content":"hi"}`))

	req.Equal([][]byte{[]byte(`{"content":"hi"}`)}, drain(phone))
	req.Equal([][]byte{[]byte(`{"content":"hi"}`)}, drain(laptop))
}
