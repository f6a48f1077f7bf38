package core

import (
	"strconv"
	"strings"
	"time"
)

// ConnID identifies one live transport session for the lifetime of the process.
type ConnID string

// MemberKey identifies a participant inside a room.
type MemberKey string

// Role represents a participant role (student or teacher).
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// ParseRole maps a client supplied role; anything but teacher is a student.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleTeacher)) {
		return RoleTeacher
	}
	return RoleStudent
}

const defaultDisplayName = "Anonymous"

// Identity is the caller-declared identity bound to a connection at join time.
type Identity struct {
	UserID *int64
	Name   string
	Role   Role
}

// MemberKey returns the room membership key for this identity. Memberships
// are keyed by user id so they survive a reconnect; connections that never
// declared a user id fall back to their connection id.
func (i Identity) MemberKey(conn ConnID) MemberKey {
	if i.UserID != nil {
		return MemberKey(strconv.FormatInt(*i.UserID, 10))
	}
	return MemberKey(conn)
}

// Binding is everything the registry knows about a connection.
type Binding struct {
	ConnID   ConnID
	OpenedAt time.Time
	Bound    bool
	Identity
	// RoomID is the room last joined; empty while the connection is room-less.
	RoomID string
}

// Key is the membership key of the bound identity.
func (b Binding) Key() MemberKey {
	return b.Identity.MemberKey(b.ConnID)
}

// Membership is one participant's ephemeral state inside a room.
type Membership struct {
	Key        MemberKey
	ConnID     ConnID
	Name       string
	Role       Role
	FocusScore float64
	// Reported is set once the member has sent a focus score since joining.
	Reported   bool
	Active     bool
	JoinedAt   time.Time
	LastUpdate time.Time
}

// freshAt reports whether the membership was updated within window of now.
func (m Membership) freshAt(now time.Time, window time.Duration) bool {
	return now.Sub(m.LastUpdate) <= window
}

func clampScore(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
