package proto

import "encoding/json"

// Kind is the canonical inbound message discriminant.
type Kind string

// Inbound type tags. These are a wire contract with clients.
const (
	KindJoin         Kind = "join"
	KindRequestState Kind = "request_state"
	KindStateUpdate  Kind = "state_update"
	KindChat         Kind = "chat"
	KindLeave        Kind = "leave"
	KindRaiseHand    Kind = "raise_hand"
	KindLowerHand    Kind = "lower_hand"
	KindReaction     Kind = "reaction"
)

// Outbound type tags.
const (
	OutboundMeetingState = "meeting_state"
	OutboundMemberJoined = "member_joined"
	OutboundMemberLeft   = "member_left"
	OutboundStateUpdate  = "state_update"
	OutboundChat         = "chat"
	OutboundError        = "error"
)

// IsSignal reports whether k is a low-frequency broadcast-only signal.
func (k Kind) IsSignal() bool {
	switch k {
	case KindRaiseHand, KindLowerHand, KindReaction:
		return true
	default:
		return false
	}
}

// Inbound is a decoded client frame with every accepted key spelling folded
// into one field. Optional fields are nil when the client omitted them.
type Inbound struct {
	Kind        Kind
	RoomID      string
	UserID      *int64
	DisplayName string
	Role        string
	FocusScore  *float64
	Active      *bool
	Message     string
	Payload     json.RawMessage
}

// MemberView is a single membership as rendered to clients.
type MemberView struct {
	MemberID   string  `json:"memberId"`
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	FocusScore float64 `json:"focusScore"`
	Active     bool    `json:"active"`
	LastUpdate int64   `json:"lastUpdate"` // unix millis
}

// MeetingState is a full room snapshot.
type MeetingState struct {
	Type    string       `json:"type"`
	RoomID  string       `json:"roomId"`
	Members []MemberView `json:"members"`
	Average float64      `json:"average"`
}

// NewMeetingState builds a snapshot payload; members is never encoded as null.
func NewMeetingState(roomID string, members []MemberView, average float64) MeetingState {
	if members == nil {
		members = []MemberView{}
	}
	return MeetingState{Type: OutboundMeetingState, RoomID: roomID, Members: members, Average: average}
}

// MemberJoined notifies room members about a new participant.
type MemberJoined struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	MemberID string `json:"memberId"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// MemberLeft notifies room members that a participant is gone.
type MemberLeft struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	MemberID string `json:"memberId"`
	Name     string `json:"name"`
}

// StateUpdate carries one member's focus state plus the room average.
type StateUpdate struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	MemberView
	Average float64 `json:"average"`
}

// Chat is a chat message relayed to the other room members.
type Chat struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	MemberID string `json:"memberId"`
	Name     string `json:"name"`
	Message  string `json:"message"`
	TS       int64  `json:"ts"`
}

// Signal relays a low-frequency signal such as raise_hand.
type Signal struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId"`
	MemberID string          `json:"memberId"`
	Name     string          `json:"name"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Type string `json:"type"`
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
