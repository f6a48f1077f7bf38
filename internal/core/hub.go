package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/focusrelay/internal/proto"
)

const defaultWindow = 30 * time.Second

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	// Window is the trailing duration for average focus and member activity.
	Window time.Duration
	// ReaperInterval enables periodic removal of members silent for StaleAfter.
	ReaperInterval time.Duration
	StaleAfter     time.Duration
	// ReplyErrors sends an error frame back for dropped messages.
	ReplyErrors bool

	Metrics *Metrics
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Hub owns the relay state of one server instance.
type Hub struct {
	registry   *Registry
	rooms      *RoomStore
	aggregator *Aggregator
	router     *Router
	presence   *Presence
	metrics    *Metrics
	log        *zerolog.Logger
	opts       Options
}

// NewHub creates a hub with its own registry and room store.
func NewHub(opts Options) *Hub {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	reg := NewRegistry(opts.Now)
	rooms := NewRoomStore(opts.Now)
	router := &Router{
		reg:         reg,
		store:       rooms,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		window:      opts.Window,
		replyErrors: opts.ReplyErrors,
		now:         opts.Now,
	}

	return &Hub{
		registry:   reg,
		rooms:      rooms,
		aggregator: NewAggregator(rooms, opts.Now),
		router:     router,
		presence: &Presence{
			reg:     reg,
			router:  router,
			metrics: opts.Metrics,
			log:     opts.Logger,
		},
		metrics: opts.Metrics,
		log:     opts.Logger,
		opts:    opts,
	}
}

// Run blocks until ctx is cancelled, running the stale member reaper when enabled.
func (h *Hub) Run(ctx context.Context) {
	if h.opts.ReaperInterval <= 0 || h.opts.StaleAfter <= 0 {
		<-ctx.Done()
		return
	}

	h.log.Info().
		Dur("interval", h.opts.ReaperInterval).
		Dur("stale_after", h.opts.StaleAfter).
		Msg("stale member reaper started")

	ticker := time.NewTicker(h.opts.ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Reap()
		}
	}
}

// Reap removes student memberships silent for longer than StaleAfter and
// notifies their rooms. The owning connections stay joined; their next state update
// recreates the membership.
func (h *Hub) Reap() int {
	removed := h.rooms.RemoveStale(h.opts.Now().Add(-h.opts.StaleAfter))
	h.rooms.Prune()
	h.metrics.setRooms(h.rooms.Len())
	for _, d := range removed {
		h.router.notifyLeft(d.RoomID, d.Membership)
	}
	if len(removed) > 0 {
		h.log.Info().Int("members", len(removed)).Msg("reaped stale members")
	}
	return len(removed)
}

// Open registers a transport connection and returns its identity.
func (h *Hub) Open(sink Sink) ConnID {
	return h.presence.Open(sink)
}

// Handle processes one inbound frame from conn.
func (h *Hub) Handle(conn ConnID, frame []byte) error {
	return h.router.Handle(conn, frame)
}

// Throttle records a frame the transport dropped for exceeding its rate limit.
func (h *Hub) Throttle(conn ConnID) {
	h.metrics.reject(ErrCodeRateLimited)
	h.log.Debug().Str("conn_id", string(conn)).Msg("frame rate limited")
}

// Close handles a transport close. Safe to call more than once.
func (h *Hub) Close(conn ConnID) {
	h.presence.Close(conn)
}

// Fail handles a transport error by closing the connection.
func (h *Hub) Fail(conn ConnID, err error) {
	h.presence.Fail(conn, err)
}

// Snapshot returns the meeting_state payload for a room; unknown rooms are empty.
func (h *Hub) Snapshot(roomID string) proto.MeetingState {
	return h.router.meetingState(roomID)
}

// RoomIDs lists the rooms that currently have members.
func (h *Hub) RoomIDs() []string {
	return h.rooms.RoomIDs()
}

// AverageFocus exposes the aggregation over the hub's configured window.
func (h *Hub) AverageFocus(roomID string) float64 {
	return h.aggregator.AverageFocus(roomID, h.opts.Window)
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms exposes the room store.
func (h *Hub) Rooms() *RoomStore { return h.rooms }
