package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/focusrelay/internal/core"
)

// WSHandler upgrades HTTP connections and bridges them to the hub.
type WSHandler struct {
	hub        *core.Hub
	log        *zerolog.Logger
	readLimit  int64
	sendBuffer int
	rateLimit  int
	accept     *websocket.AcceptOptions
}

// WSOptions tunes the websocket endpoint.
type WSOptions struct {
	ReadLimit      int64
	SendBuffer     int
	AllowedOrigins []string
	// RateLimit caps inbound frames per connection per minute; 0 disables it.
	RateLimit      int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, opts WSOptions, logger *zerolog.Logger) stdhttp.Handler {
	accept := &websocket.AcceptOptions{OriginPatterns: opts.AllowedOrigins}
	if len(opts.AllowedOrigins) == 0 {
		accept.InsecureSkipVerify = true
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &WSHandler{
		hub:        hub,
		log:        logger,
		readLimit:  opts.ReadLimit,
		sendBuffer: opts.SendBuffer,
		rateLimit:  opts.RateLimit,
		accept:     accept,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	start := time.Now()
	out := newOutbox(h.sendBuffer)
	id := h.hub.Open(out)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, id)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, out)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh
	out.close()

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
	}

	if err != nil {
		if status == websocket.StatusNormalClosure {
			status = websocket.StatusInternalError
		}
		reason = err.Error()
		h.hub.Fail(id, err)
	} else {
		h.hub.Close(id)
	}

	_ = conn.Close(status, truncateReason(reason))

	h.log.Info().
		Str("conn_id", string(id)).
		Str("remote", r.RemoteAddr).
		Int("close_status", int(status)).
		Dur("duration", time.Since(start)).
		Msg("websocket session ended")
}

// readLoop feeds frames to the hub one at a time, preserving arrival order.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, id core.ConnID) error {
	limiter := newRateLimiter(h.rateLimit, time.Minute)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !limiter.allow(time.Now()) {
			h.hub.Throttle(id)
			continue
		}
		// Rejected frames are logged by the router; the connection stays open.
		_ = h.hub.Handle(id, data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, out *outbox) error {
	for {
		select {
		case payload := <-out.ch:
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// outbox is the core.Sink of one websocket connection.
type outbox struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func newOutbox(size int) *outbox {
	return &outbox{ch: make(chan []byte, size)}
}

func (o *outbox) Send(payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return core.ErrConnectionGone
	}
	select {
	case o.ch <- payload:
		return nil
	default:
		// Drop if slow consumer.
		return core.ErrSendBufferFull
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

// Close reasons are limited to 123 bytes by the websocket protocol.
func truncateReason(reason string) string {
	const maxReason = 123
	if len(reason) > maxReason {
		return reason[:maxReason]
	}
	return reason
}
