package network

import (
	"fmt"
	"log"
	"slices"
	"sync"

	"sentinel_director_server/logic"
)

// RoomManager tracks one observer hub per site.
type RoomManager struct {
	Rooms    map[string]*Room
	Recorder logic.Recorder
	Mutex    sync.RWMutex
}

func NewRoomManager(recorder logic.Recorder) *RoomManager {
	return &RoomManager{
		Rooms:    make(map[string]*Room),
		Recorder: recorder,
	}
}

// CreateRoom builds a site hub and starts it.
func (rm *RoomManager) CreateRoom(id string, cfg *logic.DirectorConfig) (*Room, error) {
	rm.Mutex.Lock()
	defer rm.Mutex.Unlock()

	if _, exists := rm.Rooms[id]; exists {
		return nil, fmt.Errorf("site %q already exists", id)
	}
	room, err := NewRoom(id, cfg, rm.Recorder)
	if err != nil {
		return nil, fmt.Errorf("create site %s: %w", id, err)
	}
	rm.Rooms[id] = room
	go room.Run()
	log.Printf("Created Room %s", id)
	return room, nil
}

func (rm *RoomManager) GetRoom(id string) *Room {
	rm.Mutex.RLock()
	defer rm.Mutex.RUnlock()
	return rm.Rooms[id]
}

// ListRooms returns the site ids in sorted order.
func (rm *RoomManager) ListRooms() []string {
	rm.Mutex.RLock()
	defer rm.Mutex.RUnlock()
	keys := make([]string, 0, len(rm.Rooms))
	for k := range rm.Rooms {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// StopAll stops every hub and forgets it.
func (rm *RoomManager) StopAll() {
	rm.Mutex.Lock()
	rooms := rm.Rooms
	rm.Rooms = make(map[string]*Room)
	rm.Mutex.Unlock()

	for id, room := range rooms {
		room.Stop()
		log.Printf("Stopped Room %s", id)
	}
}
