package collab

// connection is the registry's record of one live client session.
type connection struct {
	id       string
	identity Identity
	rooms    map[string]bool // notebook IDs this connection has joined
}

// ConnectionRegistry tracks every live connection and its room memberships.
// It is owned by the Hub and is only mutated from the hub's run loop; rooms
// are a derived view of the membership sets, never stored separately.
type ConnectionRegistry struct {
	conns map[string]*connection
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*connection),
	}
}

// Register adds a connection. Calling it twice with the same ID is a no-op,
// so a duplicate register from a retrying client cannot create a second entry.
func (r *ConnectionRegistry) Register(connectionID string, identity Identity) {
	if _, ok := r.conns[connectionID]; ok {
		return
	}
	r.conns[connectionID] = &connection{
		id:       connectionID,
		identity: identity,
		rooms:    make(map[string]bool),
	}
}

// Identity returns the identity registered for a connection.
func (r *ConnectionRegistry) Identity(connectionID string) (Identity, bool) {
	conn, ok := r.conns[connectionID]
	if !ok {
		return Identity{}, false
	}
	return conn.identity, true
}

// JoinRoom adds a notebook to the connection's room set. Unknown connection
// IDs are ignored; the client may already be gone by the time this runs.
func (r *ConnectionRegistry) JoinRoom(connectionID, notebookID string) {
	if conn, ok := r.conns[connectionID]; ok {
		conn.rooms[notebookID] = true
	}
}

// LeaveRoom removes a notebook from the connection's room set.
func (r *ConnectionRegistry) LeaveRoom(connectionID, notebookID string) {
	if conn, ok := r.conns[connectionID]; ok {
		delete(conn.rooms, notebookID)
	}
}

// InRoom reports whether the connection has joined the notebook.
func (r *ConnectionRegistry) InRoom(connectionID, notebookID string) bool {
	conn, ok := r.conns[connectionID]
	return ok && conn.rooms[notebookID]
}

// Rooms returns the notebooks the connection is currently joined to.
func (r *ConnectionRegistry) Rooms(connectionID string) []string {
	conn, ok := r.conns[connectionID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(conn.rooms))
	for notebookID := range conn.rooms {
		rooms = append(rooms, notebookID)
	}
	return rooms
}

// Members returns the IDs of every connection joined to the notebook.
func (r *ConnectionRegistry) Members(notebookID string) []string {
	var members []string
	for id, conn := range r.conns {
		if conn.rooms[notebookID] {
			members = append(members, id)
		}
	}
	return members
}

// Remove deletes the connection and returns the rooms it belonged to so the
// caller can run per-room cleanup. Removing an unknown ID returns nil.
func (r *ConnectionRegistry) Remove(connectionID string) []string {
	conn, ok := r.conns[connectionID]
	if !ok {
		return nil
	}
	delete(r.conns, connectionID)
	rooms := make([]string, 0, len(conn.rooms))
	for notebookID := range conn.rooms {
		rooms = append(rooms, notebookID)
	}
	return rooms
}

// Len returns the number of live connections.
func (r *ConnectionRegistry) Len() int {
	return len(r.conns)
}
