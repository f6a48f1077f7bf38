package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMalformedMessage means the frame is not a JSON object or a field has the wrong shape.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownType means the frame parsed but its type tag is not recognised.
	ErrUnknownType = errors.New("unknown message type")
)

var kindAliases = map[string]Kind{
	"join":          KindJoin,
	"request_state": KindRequestState,
	"get_state":     KindRequestState,
	"state_update":  KindStateUpdate,
	"focus_update":  KindStateUpdate,
	"chat":          KindChat,
	"leave":         KindLeave,
	"raise_hand":    KindRaiseHand,
	"lower_hand":    KindLowerHand,
	"reaction":      KindReaction,
}

// Accepted spellings per canonical field, in lookup priority order.
var (
	keysType    = []string{"type"}
	keysRoom    = []string{"roomId", "room_id", "room", "meetingId", "meeting_id"}
	keysUser    = []string{"userId", "user_id", "memberId"}
	keysName    = []string{"displayName", "display_name", "name", "userName"}
	keysRole    = []string{"role"}
	keysScore   = []string{"focusScore", "focus_score", "score", "focus"}
	keysActive  = []string{"active", "isActive"}
	keysMessage = []string{"message", "text"}
	keysPayload = []string{"payload", "data"}
)

// Decode parses one frame into its canonical form. Any key spelling listed
// above is accepted; past this point only the canonical fields exist.
func Decode(data []byte) (Inbound, error) {
	var in Inbound

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return in, fmt.Errorf("%w: not a json object", ErrMalformedMessage)
	}
	fields := object(raw)

	// Type tags are a wire contract: matched exactly, no case folding or trimming.
	typ, ok, err := fields.text(keysType)
	if err != nil {
		return in, err
	}
	if !ok || typ == "" {
		return in, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	kind, known := kindAliases[typ]
	if !known {
		return in, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	in.Kind = kind

	if in.RoomID, _, err = fields.str(keysRoom); err != nil {
		return in, err
	}
	if in.UserID, err = fields.int(keysUser); err != nil {
		return in, err
	}
	if in.DisplayName, _, err = fields.str(keysName); err != nil {
		return in, err
	}
	if in.Role, _, err = fields.str(keysRole); err != nil {
		return in, err
	}
	if in.FocusScore, err = fields.float(keysScore); err != nil {
		return in, err
	}
	if in.Active, err = fields.bool(keysActive); err != nil {
		return in, err
	}
	if in.Message, _, err = fields.text(keysMessage); err != nil {
		return in, err
	}
	if v, found := fields.lookup(keysPayload); found && !isNull(v) {
		in.Payload = v
	}

	if in.Kind == KindStateUpdate && in.FocusScore == nil {
		return in, fmt.Errorf("%w: state_update without focusScore", ErrMalformedMessage)
	}
	return in, nil
}

type object map[string]json.RawMessage

// lookup tries exact spellings first, then a case-insensitive match.
func (o object) lookup(keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok {
			return v, true
		}
	}
	for name, v := range o {
		for _, k := range keys {
			if strings.EqualFold(name, k) {
				return v, true
			}
		}
	}
	return nil, false
}

// str accepts a JSON string or number and returns it trimmed.
func (o object) str(keys []string) (string, bool, error) {
	s, ok, err := o.text(keys)
	return strings.TrimSpace(s), ok, err
}

// text is str without trimming, for free-form content.
func (o object) text(keys []string) (string, bool, error) {
	v, ok := o.lookup(keys)
	if !ok || isNull(v) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), true, nil
	}
	return "", false, fmt.Errorf("%w: %s must be a string", ErrMalformedMessage, keys[0])
}

func (o object) int(keys []string) (*int64, error) {
	s, ok, err := o.str(keys)
	if err != nil || !ok || s == "" {
		return nil, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", ErrMalformedMessage, keys[0])
	}
	return &n, nil
}

func (o object) float(keys []string) (*float64, error) {
	s, ok, err := o.str(keys)
	if err != nil || !ok || s == "" {
		return nil, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s must be a number", ErrMalformedMessage, keys[0])
	}
	return &f, nil
}

func (o object) bool(keys []string) (*bool, error) {
	v, ok := o.lookup(keys)
	if !ok || isNull(v) {
		return nil, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return nil, fmt.Errorf("%w: %s must be a boolean", ErrMalformedMessage, keys[0])
	}
	return &b, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
