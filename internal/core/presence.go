package core

import "github.com/rs/zerolog"

// Presence keeps the registry and room store in step with transport
// lifecycle events.
type Presence struct {
	reg     *Registry
	router  *Router
	metrics *Metrics
	log     *zerolog.Logger
}

// Open registers a new transport connection.
func (p *Presence) Open(sink Sink) ConnID {
	id := p.reg.Open(sink)
	p.metrics.setConnections(p.reg.Len())
	p.log.Debug().Str("conn_id", string(id)).Msg("connection opened")
	return id
}

// Close tears down a connection: the registry entry goes first, then the
// membership it owned, then the room hears member_left. Running it twice, or
// racing it with an explicit leave, removes the membership at most once.
func (p *Presence) Close(id ConnID) {
	b, ok := p.reg.Close(id)
	if !ok {
		return
	}
	p.metrics.setConnections(p.reg.Len())
	p.log.Debug().
		Str("conn_id", string(id)).
		Str("room_id", b.RoomID).
		Msg("connection closed")

	if b.RoomID == "" {
		return
	}
	p.router.departRoom(b.RoomID, b.Key(), id)
}

// Fail logs a transport error and closes the connection.
func (p *Presence) Fail(id ConnID, err error) {
	p.log.Warn().Err(err).Str("conn_id", string(id)).Msg("connection error")
	p.Close(id)
}
