package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOpenAllocatesUniqueIDs(t *testing.T) {
	reg := NewRegistry(nil)
	seen := make(map[ConnID]struct{})
	for n := 0; n < 100; n++ {
		id := reg.Open(&recorder{})
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Equal(t, 100, reg.Len())
}

func TestRegistryBindOverwrites(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(clock.Now)
	id := reg.Open(&recorder{})

	uid := int64(4)
	_, err := reg.Bind(id, Identity{UserID: &uid, Name: "Alice", Role: RoleTeacher})
	require.NoError(t, err)
	b, err := reg.Bind(id, Identity{Name: "Al", Role: RoleStudent})
	require.NoError(t, err)

	assert.True(t, b.Bound)
	assert.Nil(t, b.UserID)
	assert.Equal(t, "Al", b.Name)
	assert.Equal(t, MemberKey(id), b.Key())
	assert.Equal(t, clock.Now(), b.OpenedAt)
}

func TestRegistryCloseIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	id := reg.Open(&recorder{})
	require.NoError(t, reg.SetRoom(id, "5"))

	b, ok := reg.Close(id)
	require.True(t, ok)
	assert.Equal(t, "5", b.RoomID)

	_, ok = reg.Close(id)
	assert.False(t, ok)

	_, err := reg.Resolve(id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Bind(id, Identity{Name: "late"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, reg.SetRoom(id, "6"), ErrNotFound)
}

func TestRegistrySendToClosedConnection(t *testing.T) {
	reg := NewRegistry(nil)
	out := &recorder{}
	id := reg.Open(out)

	require.NoError(t, reg.Send(id, []byte(`{"type":"x"}`)))
	reg.Close(id)
	assert.ErrorIs(t, reg.Send(id, []byte(`{"type":"x"}`)), ErrConnectionGone)
	assert.Equal(t, 1, out.count())
}
