package devserver

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	ErrConnAlreadyExists = errors.New("conn already exists")
	ErrConnNotFound      = errors.New("conn not found")
)

// connRegistry tracks live websocket connections per room. Each connection
// carries its own write mutex because broadcasts originate from other
// members' read goroutines.
type connRegistry struct {
	mu          sync.RWMutex
	entryByUser map[string]*connEntry
	roomByUser  map[string]string
}

type connEntry struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newConnRegistry() *connRegistry {
	return &connRegistry{
		entryByUser: make(map[string]*connEntry),
		roomByUser:  make(map[string]string),
	}
}

func (r *connRegistry) Add(conn *websocket.Conn, roomId, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entryByUser[userId]; ok {
		return ErrConnAlreadyExists
	}

	r.entryByUser[userId] = &connEntry{conn: conn}
	r.roomByUser[userId] = roomId

	return nil
}

func (r *connRegistry) RemoveByUser(userId string) (*websocket.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entryByUser[userId]
	if !ok {
		return nil, ErrConnNotFound
	}

	delete(r.entryByUser, userId)
	delete(r.roomByUser, userId)

	return entry.conn, nil
}

// RoomEntries returns the live connections of every online member of a room.
func (r *connRegistry) RoomEntries(roomId string) []*connEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*connEntry, 0)
	for userId, memberRoomId := range r.roomByUser {
		if memberRoomId == roomId {
			entries = append(entries, r.entryByUser[userId])
		}
	}

	return entries
}

func (r *connRegistry) EntryByUser(userId string) (*connEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entryByUser[userId]
	if !ok {
		return nil, ErrConnNotFound
	}

	return entry, nil
}

func (e *connEntry) WriteJSON(v any) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return e.conn.WriteJSON(v)
}
