package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRequestGrantDenyRelease(t *testing.T) {
	lt := NewLockTable()
	alice := Identity{ID: "u1", Name: "Alice"}
	bob := Identity{ID: "u2", Name: "Bob"}

	result, lock := lt.Request("nb1", "n1", "c1", alice)
	require.Equal(t, LockGranted, result)
	assert.Equal(t, "c1", lock.HolderConnectionID)
	assert.Equal(t, "nb1", lock.NotebookID)

	t.Run("same holder re-request is idempotent", func(t *testing.T) {
		result, lock := lt.Request("nb1", "n1", "c1", alice)
		assert.Equal(t, LockAlreadyHeld, result)
		assert.Equal(t, "c1", lock.HolderConnectionID)
		assert.Equal(t, 1, lt.Len())
	})

	t.Run("other connection is denied with holder identity", func(t *testing.T) {
		result, lock := lt.Request("nb1", "n1", "c2", bob)
		assert.Equal(t, LockDenied, result)
		assert.Equal(t, alice, lock.Holder, "denial must name the current holder")
		assert.Equal(t, 1, lt.Len(), "denied request must not change state")
	})

	t.Run("non-holder release is ignored", func(t *testing.T) {
		assert.False(t, lt.Release("n1", "c2"))
		_, held := lt.Holder("n1")
		assert.True(t, held)
	})

	t.Run("holder release frees the note", func(t *testing.T) {
		assert.True(t, lt.Release("n1", "c1"))
		assert.Equal(t, 0, lt.Len())

		result, _ := lt.Request("nb1", "n1", "c2", bob)
		assert.Equal(t, LockGranted, result)
	})
}

func TestLockReleaseUnknownNote(t *testing.T) {
	lt := NewLockTable()
	assert.False(t, lt.Release("missing", "c1"))
}

func TestLockReleaseAll(t *testing.T) {
	lt := NewLockTable()
	alice := Identity{ID: "u1"}
	bob := Identity{ID: "u2"}

	lt.Request("nb1", "n1", "c1", alice)
	lt.Request("nb2", "n2", "c1", alice)
	lt.Request("nb1", "n3", "c2", bob)

	released := lt.ReleaseAll("c1")
	require.Len(t, released, 2, "exactly the holder's locks are released")
	assert.ElementsMatch(t, []ReleasedLock{
		{NoteID: "n1", NotebookID: "nb1"},
		{NoteID: "n2", NotebookID: "nb2"},
	}, released)

	assert.Equal(t, 1, lt.Len())
	_, held := lt.Holder("n3")
	assert.True(t, held, "other holders' locks survive")

	assert.Empty(t, lt.ReleaseAll("c1"), "second release finds nothing")
}

func TestLockActivePerNotebook(t *testing.T) {
	lt := NewLockTable()
	lt.Request("nb1", "n1", "c1", Identity{ID: "u1", Name: "Alice"})
	lt.Request("nb2", "n2", "c2", Identity{ID: "u2", Name: "Bob"})

	active := lt.Active("nb1")
	require.Len(t, active, 1)
	assert.Equal(t, "n1", active[0].NoteID)
	assert.Equal(t, "Alice", active[0].User.Name)

	assert.Empty(t, lt.Active("nb3"))
}
