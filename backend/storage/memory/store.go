package memory

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/adwski/watch-party/backend/model"
)

const (
	DefaultCodeLength = 6

	codeAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeGenAttempts = 100
)

// MemStore owns all rooms of the process and the reverse
// connection -> room index. It is not safe for concurrent use,
// callers serialize access.
type MemStore struct {
	db     map[string]*model.Room
	conns  map[string]string
	newID  func() (string, error)
	length int
}

func NewMemStore(codeLength int) *MemStore {
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	ms := &MemStore{
		db:     make(map[string]*model.Room),
		conns:  make(map[string]string),
		length: codeLength,
	}
	ms.newID = ms.randomCode
	return ms
}

// Create installs a new room with creator as the only member and host.
// Empty roomID means the id is generated until an unused one is found.
func (ms *MemStore) Create(roomID, mediaReference string, creator model.Participant, now time.Time) (*model.Room, error) {
	if _, ok := ms.conns[creator.ID]; ok {
		return nil, model.ErrAlreadyInRoom
	}
	if roomID == "" {
		id, err := ms.uniqueCode()
		if err != nil {
			return nil, err
		}
		roomID = id
	} else if _, ok := ms.db[roomID]; ok {
		return nil, model.ErrDuplicateRoom
	}

	room := &model.Room{
		ID:             roomID,
		MediaReference: mediaReference,
		Members:        []model.Participant{creator},
		Hosts:          map[string]struct{}{creator.ID: {}},
		State:          model.StatePaused,
		ReferenceTime:  now,
	}
	ms.db[roomID] = room
	ms.conns[creator.ID] = roomID
	return room, nil
}

func (ms *MemStore) Lookup(roomID string) (*model.Room, error) {
	room, ok := ms.db[roomID]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return room, nil
}

// RoomOf returns the room the connection belongs to.
func (ms *MemStore) RoomOf(connID string) (*model.Room, bool) {
	roomID, ok := ms.conns[connID]
	if !ok {
		return nil, false
	}
	room, ok := ms.db[roomID]
	return room, ok
}

func (ms *MemStore) AddMember(roomID string, p model.Participant) (*model.Room, error) {
	room, ok := ms.db[roomID]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	if _, ok = ms.conns[p.ID]; ok {
		return nil, model.ErrAlreadyInRoom
	}
	room.Members = append(room.Members, p)
	ms.conns[p.ID] = roomID
	return room, nil
}

// RemoveMember drops the connection from the room and its hosts.
// An emptied room is deleted right away, a room left without hosts
// gets its oldest remaining member promoted.
func (ms *MemStore) RemoveMember(roomID, connID string) (*model.Departure, error) {
	room, ok := ms.db[roomID]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	idx := -1
	for i, m := range room.Members {
		if m.ID == connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, model.ErrNotAMember
	}

	room.Members = append(room.Members[:idx:idx], room.Members[idx+1:]...)
	delete(room.Hosts, connID)
	delete(ms.conns, connID)

	dep := &model.Departure{RoomID: roomID}
	if len(room.Members) == 0 {
		delete(ms.db, roomID)
		dep.Deleted = true
		return dep, nil
	}
	if len(room.Hosts) == 0 {
		dep.NewHost = room.Members[0].ID
		room.Hosts[dep.NewHost] = struct{}{}
	}
	dep.Room = room
	return dep, nil
}

// Destroy deletes the room and returns the members it had.
func (ms *MemStore) Destroy(roomID string) ([]model.Participant, error) {
	room, ok := ms.db[roomID]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	for _, m := range room.Members {
		delete(ms.conns, m.ID)
	}
	delete(ms.db, roomID)
	return room.Members, nil
}

// Stats returns number of rooms and number of participants across all rooms.
func (ms *MemStore) Stats() (rooms, participants int) {
	return len(ms.db), len(ms.conns)
}

func (ms *MemStore) uniqueCode() (string, error) {
	for range maxCodeGenAttempts {
		id, err := ms.newID()
		if err != nil {
			return "", err
		}
		if _, ok := ms.db[id]; !ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("unable to generate unique room id after %d attempts", maxCodeGenAttempts)
}

func (ms *MemStore) randomCode() (string, error) {
	var (
		b     = make([]byte, ms.length)
		limit = big.NewInt(int64(len(codeAlphabet)))
	)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("unable to generate room id: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
