package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/focusrelay/internal/proto"
)

// Router decodes inbound frames, applies them to the stores and fans the
// results out. Frames of one connection must be handed over in arrival order
// from a single goroutine; different connections may call concurrently.
type Router struct {
	reg         *Registry
	store       *RoomStore
	metrics     *Metrics
	log         *zerolog.Logger
	window      time.Duration
	replyErrors bool
	now         func() time.Time
}

// Handle processes one raw frame from conn. Every failure is recovered here:
// the returned error only says why the frame was dropped.
func (r *Router) Handle(conn ConnID, frame []byte) error {
	in, err := proto.Decode(frame)
	if err != nil {
		r.reject(conn, "", err)
		return err
	}
	r.metrics.message(string(in.Kind))
	if err := r.Dispatch(conn, in); err != nil {
		r.reject(conn, in.Kind, err)
		return err
	}
	return nil
}

// Dispatch applies an already decoded message.
func (r *Router) Dispatch(conn ConnID, in proto.Inbound) error {
	if in.Kind.IsSignal() {
		return r.handleSignal(conn, in)
	}
	switch in.Kind {
	case proto.KindJoin:
		return r.handleJoin(conn, in)
	case proto.KindRequestState:
		return r.handleRequestState(conn, in)
	case proto.KindStateUpdate:
		return r.handleStateUpdate(conn, in)
	case proto.KindChat:
		return r.handleChat(conn, in)
	case proto.KindLeave:
		return r.handleLeave(conn, in)
	default:
		return fmt.Errorf("%w: %q", proto.ErrUnknownType, in.Kind)
	}
}

func (r *Router) handleJoin(conn ConnID, in proto.Inbound) error {
	if in.RoomID == "" {
		return ErrInvalidJoin
	}

	prev, err := r.reg.Resolve(conn)
	if err != nil {
		return err
	}

	identity := Identity{UserID: in.UserID, Name: in.DisplayName, Role: ParseRole(in.Role)}
	if identity.Name == "" {
		identity.Name = defaultDisplayName
	}
	key := identity.MemberKey(conn)

	// Switching rooms, or rejoining under another user id, leaves the old membership first.
	if prev.RoomID != "" && (prev.RoomID != in.RoomID || prev.Key() != key) {
		r.departRoom(prev.RoomID, prev.Key(), conn)
	}

	binding, err := r.reg.Bind(conn, identity)
	if err != nil {
		return err
	}
	m, created := r.store.Join(in.RoomID, key, conn, identity.Name, identity.Role)
	if err := r.reg.SetRoom(conn, in.RoomID); err != nil {
		// Closed concurrently; the close path cannot see this membership.
		r.store.LeaveIfOwner(in.RoomID, key, conn)
		r.metrics.setRooms(r.store.Len())
		return err
	}
	r.metrics.setRooms(r.store.Len())

	r.log.Debug().
		Str("conn_id", string(conn)).
		Str("room_id", in.RoomID).
		Str("member_id", string(key)).
		Str("role", string(identity.Role)).
		Bool("new_member", created).
		Msg("member joined")

	r.unicast(conn, r.meetingStateFor(binding.Identity, key, in.RoomID))
	if created {
		r.broadcast(in.RoomID, conn, nil, proto.MemberJoined{
			Type:     proto.OutboundMemberJoined,
			RoomID:   in.RoomID,
			MemberID: string(m.Key),
			Name:     m.Name,
			Role:     string(m.Role),
		})
	}

	if in.FocusScore != nil {
		binding.RoomID = in.RoomID
		return r.applyState(binding, in)
	}
	return nil
}

func (r *Router) handleRequestState(conn ConnID, in proto.Inbound) error {
	b, err := r.reg.Resolve(conn)
	if err != nil {
		return err
	}
	roomID := in.RoomID
	if roomID == "" {
		roomID = b.RoomID
	}
	if roomID == "" {
		return ErrNotJoined
	}
	var self MemberKey
	if b.Bound {
		self = b.Key()
	}
	r.unicast(conn, r.meetingStateFor(b.Identity, self, roomID))
	return nil
}

func (r *Router) handleStateUpdate(conn ConnID, in proto.Inbound) error {
	b, err := r.joined(conn, in)
	if err != nil {
		return err
	}
	return r.applyState(b, in)
}

// applyState updates the sender's membership and sends the result to the
// room's teachers only. A missing membership (reaped, or a state update that
// raced ahead of its join) is recreated from the connection's binding.
func (r *Router) applyState(b Binding, in proto.Inbound) error {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	var score float64
	if in.FocusScore != nil {
		score = *in.FocusScore
	}

	key := b.Key()
	m, err := r.store.UpdateState(b.RoomID, key, score, active)
	if errors.Is(err, ErrUnknownMember) {
		joined, _ := r.store.Join(b.RoomID, key, b.ConnID, b.Name, b.Role)
		r.metrics.setRooms(r.store.Len())
		r.broadcast(b.RoomID, b.ConnID, nil, proto.MemberJoined{
			Type:     proto.OutboundMemberJoined,
			RoomID:   b.RoomID,
			MemberID: string(joined.Key),
			Name:     joined.Name,
			Role:     string(joined.Role),
		})
		m, err = r.store.UpdateState(b.RoomID, key, score, active)
	}
	if err != nil {
		return err
	}

	members := r.store.Snapshot(b.RoomID)
	now := r.now()
	update := proto.StateUpdate{
		Type:       proto.OutboundStateUpdate,
		RoomID:     b.RoomID,
		MemberView: r.view(m, now),
		Average:    averageFocus(members, now, r.window),
	}
	r.fanout(members, "", func(rm Membership) bool { return rm.Role == RoleTeacher }, update)
	return nil
}

func (r *Router) handleChat(conn ConnID, in proto.Inbound) error {
	b, err := r.joined(conn, in)
	if err != nil {
		return err
	}
	if in.Message == "" {
		return fmt.Errorf("%w: chat without message", proto.ErrMalformedMessage)
	}
	r.broadcast(b.RoomID, conn, nil, proto.Chat{
		Type:     proto.OutboundChat,
		RoomID:   b.RoomID,
		MemberID: string(b.Key()),
		Name:     b.Name,
		Message:  in.Message,
		TS:       r.now().Unix(),
	})
	return nil
}

func (r *Router) handleLeave(conn ConnID, in proto.Inbound) error {
	b, err := r.joined(conn, in)
	if err != nil {
		return err
	}
	r.departRoom(b.RoomID, b.Key(), conn)
	return r.reg.SetRoom(conn, "")
}

func (r *Router) handleSignal(conn ConnID, in proto.Inbound) error {
	b, err := r.joined(conn, in)
	if err != nil {
		return err
	}
	r.broadcast(b.RoomID, conn, nil, proto.Signal{
		Type:     string(in.Kind),
		RoomID:   b.RoomID,
		MemberID: string(b.Key()),
		Name:     b.Name,
		Payload:  in.Payload,
	})
	return nil
}

// joined returns the binding of a connection in the JOINED state for the
// room the message names. A message without a room id targets the joined room.
func (r *Router) joined(conn ConnID, in proto.Inbound) (Binding, error) {
	b, err := r.reg.Resolve(conn)
	if err != nil {
		return Binding{}, err
	}
	if b.RoomID == "" || (in.RoomID != "" && in.RoomID != b.RoomID) {
		return Binding{}, ErrNotJoined
	}
	return b, nil
}

// departRoom removes conn's membership and tells the remaining members.
func (r *Router) departRoom(roomID string, key MemberKey, conn ConnID) {
	m, ok := r.store.LeaveIfOwner(roomID, key, conn)
	r.metrics.setRooms(r.store.Len())
	if !ok {
		return
	}
	r.notifyLeft(roomID, m)
}

func (r *Router) notifyLeft(roomID string, m Membership) {
	r.log.Debug().
		Str("room_id", roomID).
		Str("member_id", string(m.Key)).
		Msg("member left")
	r.broadcast(roomID, m.ConnID, nil, proto.MemberLeft{
		Type:     proto.OutboundMemberLeft,
		RoomID:   roomID,
		MemberID: string(m.Key),
		Name:     m.Name,
	})
}

func (r *Router) meetingState(roomID string) proto.MeetingState {
	members := r.store.Snapshot(roomID)
	now := r.now()
	views := make([]proto.MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, r.view(m, now))
	}
	return proto.NewMeetingState(roomID, views, averageFocus(members, now, r.window))
}

// meetingStateFor is the snapshot a connection may see. Teachers get every
// score; anyone else sees only their own score and the room average.
func (r *Router) meetingStateFor(viewer Identity, self MemberKey, roomID string) proto.MeetingState {
	state := r.meetingState(roomID)
	if viewer.Role == RoleTeacher {
		return state
	}
	for i := range state.Members {
		if self == "" || MemberKey(state.Members[i].MemberID) != self {
			state.Members[i].FocusScore = 0
		}
	}
	return state
}

// view renders a membership; a member counts as active only while it has
// reported within the aggregation window.
func (r *Router) view(m Membership, now time.Time) proto.MemberView {
	return proto.MemberView{
		MemberID:   string(m.Key),
		Name:       m.Name,
		Role:       string(m.Role),
		FocusScore: m.FocusScore,
		Active:     m.Active && m.freshAt(now, r.window),
		LastUpdate: m.LastUpdate.UnixMilli(),
	}
}

// broadcast sends v to every member of the room except the one on exclude,
// optionally filtered by role.
func (r *Router) broadcast(roomID string, exclude ConnID, filter func(Membership) bool, v any) {
	r.fanout(r.store.Snapshot(roomID), exclude, filter, v)
}

func (r *Router) fanout(members []Membership, exclude ConnID, filter func(Membership) bool, v any) {
	if len(members) == 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		r.log.Error().Err(err).Msg("encode outbound")
		return
	}
	for _, m := range members {
		if m.ConnID == exclude || (filter != nil && !filter(m)) {
			continue
		}
		r.deliver(m.ConnID, payload)
	}
}

func (r *Router) unicast(conn ConnID, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.log.Error().Err(err).Msg("encode outbound")
		return
	}
	r.deliver(conn, payload)
}

// deliver never fails the caller: recipients that are gone or backed up are skipped.
func (r *Router) deliver(conn ConnID, payload []byte) {
	if err := r.reg.Send(conn, payload); err != nil {
		r.metrics.drop()
		r.log.Debug().Err(err).Str("conn_id", string(conn)).Msg("outbound dropped")
	}
}

func (r *Router) reject(conn ConnID, kind proto.Kind, err error) {
	code := errorCode(err)
	r.metrics.reject(code)
	r.log.Warn().
		Err(err).
		Str("conn_id", string(conn)).
		Str("type", string(kind)).
		Str("code", code).
		Msg("message rejected")

	if r.replyErrors && !errors.Is(err, ErrNotFound) {
		r.unicast(conn, proto.Error{Type: proto.OutboundError, Code: code, Msg: err.Error()})
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidJoin):
		return ErrCodeInvalidJoin
	case errors.Is(err, ErrNotJoined):
		return ErrCodeNotJoined
	case errors.Is(err, proto.ErrUnknownType):
		return ErrCodeUnknownType
	case errors.Is(err, proto.ErrMalformedMessage):
		return ErrCodeMalformedMessage
	case errors.Is(err, ErrNotFound):
		return "connection_not_found"
	default:
		return "internal"
	}
}
