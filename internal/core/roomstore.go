package core

import (
	"sort"
	"sync"
	"time"
)

type room struct {
	mu      sync.Mutex
	members map[MemberKey]*Membership
}

// RoomStore owns every room and membership. The store lock guards the room
// map and is held exclusively only while rooms are created or deleted; each
// room has its own lock for membership state. Lock order: store, then room.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*room
	now   func() time.Time
}

// NewRoomStore creates an empty store. A nil clock means time.Now.
func NewRoomStore(now func() time.Time) *RoomStore {
	if now == nil {
		now = time.Now
	}
	return &RoomStore{
		rooms: make(map[string]*room),
		now:   now,
	}
}

// EnsureRoom creates the room if absent. Returns true if newly created.
// A room with no members is dropped by the next Leave or Prune.
func (s *RoomStore) EnsureRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, created := s.ensureLocked(roomID)
	return created
}

func (s *RoomStore) ensureLocked(roomID string) (*room, bool) {
	if r, ok := s.rooms[roomID]; ok {
		return r, false
	}
	r := &room{members: make(map[MemberKey]*Membership)}
	s.rooms[roomID] = r
	return r, true
}

// Join inserts or resets a membership owned by conn. Returns true if the
// member was not in the room before.
func (s *RoomStore) Join(roomID string, key MemberKey, conn ConnID, name string, role Role) (Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, _ := s.ensureLocked(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := s.now()
	m, existed := r.members[key]
	if !existed {
		m = &Membership{Key: key, JoinedAt: now}
		r.members[key] = m
	}
	m.ConnID = conn
	m.Name = name
	m.Role = role
	m.FocusScore = 0
	m.Reported = false
	m.Active = true
	m.LastUpdate = now
	return *m, !existed
}

// UpdateState records a new focus score, clamped into [0, 100].
func (s *RoomStore) UpdateState(roomID string, key MemberKey, score float64, active bool) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return Membership{}, ErrUnknownMember
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[key]
	if !ok {
		return Membership{}, ErrUnknownMember
	}
	m.FocusScore = clampScore(score)
	m.Reported = true
	m.Active = active
	m.LastUpdate = s.now()
	return *m, nil
}

// Leave removes the membership and deletes the room once it is empty.
func (s *RoomStore) Leave(roomID string, key MemberKey) (Membership, bool) {
	return s.leave(roomID, key, func(*Membership) bool { return true })
}

// LeaveIfOwner is Leave restricted to memberships still owned by conn, so a
// stale connection cannot evict the member's newer connection.
func (s *RoomStore) LeaveIfOwner(roomID string, key MemberKey, conn ConnID) (Membership, bool) {
	return s.leave(roomID, key, func(m *Membership) bool { return m.ConnID == conn })
}

func (s *RoomStore) leave(roomID string, key MemberKey, match func(*Membership) bool) (Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return Membership{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[key]
	if !ok || !match(m) {
		return Membership{}, false
	}
	delete(r.members, key)
	if len(r.members) == 0 {
		delete(s.rooms, roomID)
	}
	return *m, true
}

// Snapshot returns copies of the room's memberships ordered by join time.
// An absent room yields an empty slice.
func (s *RoomStore) Snapshot(roomID string) []Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	r.mu.Lock()
	out := make([]Membership, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// RoomsContaining lists every room holding a membership for key.
func (s *RoomStore) RoomsContaining(key MemberKey) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, r := range s.rooms {
		r.mu.Lock()
		_, ok := r.members[key]
		r.mu.Unlock()
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RoomIDs lists every room in the store.
func (s *RoomStore) RoomIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Exists reports whether the room is present.
func (s *RoomStore) Exists(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Len returns the number of rooms.
func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Departure is a membership removed outside of an explicit leave or close.
type Departure struct {
	RoomID string
	Membership
}

// RemoveStale drops memberships last updated before cutoff. Teachers are
// never stale: they watch the room and may never send a state update.
func (s *RoomStore) RemoveStale(cutoff time.Time) []Departure {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Departure
	for id, r := range s.rooms {
		r.mu.Lock()
		for key, m := range r.members {
			if m.Role != RoleTeacher && m.LastUpdate.Before(cutoff) {
				out = append(out, Departure{RoomID: id, Membership: *m})
				delete(r.members, key)
			}
		}
		empty := len(r.members) == 0
		r.mu.Unlock()
		if empty {
			delete(s.rooms, id)
		}
	}
	return out
}

// Prune deletes rooms that were ensured but never joined.
func (s *RoomStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.rooms {
		r.mu.Lock()
		empty := len(r.members) == 0
		r.mu.Unlock()
		if empty {
			delete(s.rooms, id)
			n++
		}
	}
	return n
}
