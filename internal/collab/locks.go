package collab

import "time"

// EditLock is the exclusive editing token over a single note.
type EditLock struct {
	NoteID             string
	NotebookID         string
	HolderConnectionID string
	Holder             Identity
	AcquiredAt         time.Time
}

// LockResult is the outcome of a lock request. Denial is an expected
// protocol outcome, not an error.
type LockResult int

const (
	// LockGranted means the requester now holds the lock.
	LockGranted LockResult = iota
	// LockAlreadyHeld means the requester already held the lock; nothing changed.
	LockAlreadyHeld
	// LockDenied means another connection holds the lock.
	LockDenied
)

// ReleasedLock identifies a lock dropped during disconnect cleanup, with the
// notebook it was scoped to so the caller can notify that room.
type ReleasedLock struct {
	NoteID     string
	NotebookID string
}

// LockTable coordinates per-note edit locks. At most one lock exists per
// note ID; first requester wins and there is no queueing, a denied requester
// retries after it sees the note unlocked. Mutated only from the hub's run loop.
type LockTable struct {
	locks map[string]*EditLock // keyed by note ID
}

func NewLockTable() *LockTable {
	return &LockTable{
		locks: make(map[string]*EditLock),
	}
}

// Request attempts to acquire the lock on a note. On LockDenied the returned
// lock describes the current holder so the requester can be told who has it.
func (t *LockTable) Request(notebookID, noteID, connectionID string, identity Identity) (LockResult, *EditLock) {
	if lock, ok := t.locks[noteID]; ok {
		if lock.HolderConnectionID == connectionID {
			return LockAlreadyHeld, lock
		}
		return LockDenied, lock
	}
	lock := &EditLock{
		NoteID:             noteID,
		NotebookID:         notebookID,
		HolderConnectionID: connectionID,
		Holder:             identity,
		AcquiredAt:         time.Now(),
	}
	t.locks[noteID] = lock
	return LockGranted, lock
}

// Release removes the lock if the caller holds it. A release from a
// non-holder is ignored so a stale release cannot clobber another holder's lock.
func (t *LockTable) Release(noteID, connectionID string) bool {
	lock, ok := t.locks[noteID]
	if !ok || lock.HolderConnectionID != connectionID {
		return false
	}
	delete(t.locks, noteID)
	return true
}

// ReleaseAll drops every lock held by the connection and returns what was
// released so the caller can broadcast an unlock for each.
func (t *LockTable) ReleaseAll(connectionID string) []ReleasedLock {
	var released []ReleasedLock
	for noteID, lock := range t.locks {
		if lock.HolderConnectionID == connectionID {
			delete(t.locks, noteID)
			released = append(released, ReleasedLock{
				NoteID:     noteID,
				NotebookID: lock.NotebookID,
			})
		}
	}
	return released
}

// Active returns the locks scoped to a notebook, for the active-locks
// snapshot sent to a joining client.
func (t *LockTable) Active(notebookID string) []LockInfo {
	var active []LockInfo
	for noteID, lock := range t.locks {
		if lock.NotebookID == notebookID {
			active = append(active, LockInfo{NoteID: noteID, User: lock.Holder})
		}
	}
	return active
}

// Holder returns the lock on a note, if any.
func (t *LockTable) Holder(noteID string) (*EditLock, bool) {
	lock, ok := t.locks[noteID]
	return lock, ok
}

// Len returns the number of held locks.
func (t *LockTable) Len() int {
	return len(t.locks)
}
