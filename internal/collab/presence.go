package collab

// PresenceTracker derives the externally visible member list for each room.
// Presence follows connection membership rather than being reconciled
// independently, so "who is connected" and "who is shown" cannot drift.
// Like the registry, it is only mutated from the hub's run loop.
type PresenceTracker struct {
	rooms map[string][]PresenceEntry
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		rooms: make(map[string][]PresenceEntry),
	}
}

// Join adds the connection to the room's presence list and returns the
// updated list. A connection already present is not added again, so retried
// join events cannot duplicate an entry; added reports whether the list
// actually changed.
func (p *PresenceTracker) Join(notebookID, connectionID string, identity Identity) (list []PresenceEntry, added bool) {
	for _, entry := range p.rooms[notebookID] {
		if entry.ConnectionID == connectionID {
			return p.Snapshot(notebookID), false
		}
	}
	p.rooms[notebookID] = append(p.rooms[notebookID], PresenceEntry{
		ConnectionID: connectionID,
		User:         identity,
	})
	return p.Snapshot(notebookID), true
}

// Leave removes the connection from the room's presence list. A room whose
// last member leaves is discarded entirely. removed reports whether the
// connection was present.
func (p *PresenceTracker) Leave(notebookID, connectionID string) (removed bool) {
	entries, ok := p.rooms[notebookID]
	if !ok {
		return false
	}
	kept := entries[:0]
	for _, entry := range entries {
		if entry.ConnectionID == connectionID {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) == 0 {
		delete(p.rooms, notebookID)
		return removed
	}
	p.rooms[notebookID] = kept
	return removed
}

// Snapshot returns a copy of the room's current presence list.
func (p *PresenceTracker) Snapshot(notebookID string) []PresenceEntry {
	entries := p.rooms[notebookID]
	out := make([]PresenceEntry, len(entries))
	copy(out, entries)
	return out
}

// RoomCount returns the number of rooms with at least one member.
func (p *PresenceTracker) RoomCount() int {
	return len(p.rooms)
}
