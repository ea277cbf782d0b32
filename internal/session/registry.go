package session

import "sync"

// identity is the authenticated principal bound to one socket connection.
type identity struct {
	UserID   string
	Username string
}

// Registry maps live connections to authenticated users and match rooms.
// One user holds at most one bound connection; a fresh login displaces the
// previous binding so the reconnecting socket inherits the session.
type Registry struct {
	mu       sync.Mutex
	byConn   map[string]identity
	byUser   map[string]string          // userID -> connID
	rooms    map[string]map[string]bool // matchID -> connIDs
	roomByID map[string]string          // connID -> matchID
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:   make(map[string]identity),
		byUser:   make(map[string]string),
		rooms:    make(map[string]map[string]bool),
		roomByID: make(map[string]string),
	}
}

// Bind associates a connection with a user. The previous connection of the
// same user, if any, is returned so the caller can drop it.
func (r *Registry) Bind(connID, userID, username string) (displacedConn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byUser[userID]; ok && old != connID {
		displacedConn = old
		delete(r.byConn, old)
		r.leaveLocked(old)
	}
	r.byConn[connID] = identity{UserID: userID, Username: username}
	r.byUser[userID] = connID
	return displacedConn
}

// Identity returns the user bound to a connection.
func (r *Registry) Identity(connID string) (identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byConn[connID]
	return id, ok
}

// ConnOf returns the live connection of a user.
func (r *Registry) ConnOf(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Unbind removes a closed connection and reports the user it carried.
func (r *Registry) Unbind(connID string) (identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byConn[connID]
	if !ok {
		return identity{}, false
	}
	delete(r.byConn, connID)
	if r.byUser[id.UserID] == connID {
		delete(r.byUser, id.UserID)
	}
	r.leaveLocked(connID)
	return id, true
}

// JoinRoom moves a connection into a match room, leaving any previous one.
func (r *Registry) JoinRoom(connID, matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID)
	room, ok := r.rooms[matchID]
	if !ok {
		room = make(map[string]bool)
		r.rooms[matchID] = room
	}
	room[connID] = true
	r.roomByID[connID] = matchID
}

// RoomConns snapshots the connections present in a match room.
func (r *Registry) RoomConns(matchID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rooms[matchID]))
	for c := range r.rooms[matchID] {
		out = append(out, c)
	}
	return out
}

// CloseRoom drops a finished match room.
func (r *Registry) CloseRoom(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.rooms[matchID] {
		delete(r.roomByID, c)
	}
	delete(r.rooms, matchID)
}

func (r *Registry) leaveLocked(connID string) {
	matchID, ok := r.roomByID[connID]
	if !ok {
		return
	}
	delete(r.roomByID, connID)
	if room, ok := r.rooms[matchID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, matchID)
		}
	}
}
