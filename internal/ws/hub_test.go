package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeCounter struct{ n int }

func (c *closeCounter) Close() error {
	c.n++
	return nil
}

func TestHubRegisterAndRemove(t *testing.T) {
	hub := NewHub()
	v := NewVisit(ConnInfo{ConnID: "c1", UserID: "alice", RoomID: "R1"}, nil)

	assert.Nil(t, hub.Register(v))
	require.Equal(t, 1, hub.Len())
	assert.Len(t, hub.RoomVisits("R1"), 1)
	assert.Empty(t, hub.RoomVisits("R2"))

	assert.True(t, hub.Remove(v))
	assert.Equal(t, 0, hub.Len())
	assert.False(t, hub.Remove(v))
}

func TestHubRegisterDisplacesSameSession(t *testing.T) {
	hub := NewHub()
	first := NewVisit(ConnInfo{ConnID: "c1", UserID: "alice", DeviceID: "phone", RoomID: "R1"}, nil)
	second := NewVisit(ConnInfo{ConnID: "c2", UserID: "alice", DeviceID: "phone", RoomID: "R1"}, nil)

	hub.Register(first)
	prior := hub.Register(second)
	require.Same(t, first, prior)

	assert.False(t, hub.Remove(first), "stale visit must not evict its replacement")
	assert.Equal(t, 1, hub.Len())
	assert.Equal(t, "c2", hub.RoomVisits("R1")[0].ConnID)
}

func TestHubKeepsOtherDevicesAndRooms(t *testing.T) {
	hub := NewHub()
	hub.Register(NewVisit(ConnInfo{UserID: "alice", DeviceID: "phone", RoomID: "R1"}, nil))
	assert.Nil(t, hub.Register(NewVisit(ConnInfo{UserID: "alice", DeviceID: "laptop", RoomID: "R1"}, nil)))
	assert.Nil(t, hub.Register(NewVisit(ConnInfo{UserID: "alice", DeviceID: "phone", RoomID: "R2"}, nil)))
	assert.Nil(t, hub.Register(NewVisit(ConnInfo{UserID: "bob", DeviceID: "phone", RoomID: "R1"}, nil)))
	assert.Equal(t, 4, hub.Len())
}

func TestVisitCloseIsIdempotent(t *testing.T) {
	counter := &closeCounter{}
	v := NewVisit(ConnInfo{}, counter)
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.Equal(t, 1, counter.n)
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub()
	a, b := &closeCounter{}, &closeCounter{}
	hub.Register(NewVisit(ConnInfo{UserID: "alice", RoomID: "R1"}, a))
	hub.Register(NewVisit(ConnInfo{UserID: "bob", RoomID: "R1"}, b))

	hub.CloseAll()
	assert.Equal(t, 0, hub.Len())
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}
