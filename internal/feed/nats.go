package feed

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/focusrelay/internal/core"
	"github.com/vovakirdan/focusrelay/internal/proto"
)

// Connect dials NATS with unlimited reconnects, logging connection changes.
func Connect(url string, logger *zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("focusrelay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
}

// NATSPublisher publishes snapshots as core NATS messages.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher wraps an open connection.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.nc.Publish(subject, data)
}

// Producer is the inbound side of the relay as seen by an external producer.
type Producer interface {
	Open(sink core.Sink) core.ConnID
	Handle(conn core.ConnID, frame []byte) error
	Close(conn core.ConnID)
}

// Ingest feeds frames published on <subject>.<producer> into the relay. Each
// (producer, userId) pair gets its own virtual connection whose outbound
// traffic is discarded, so producers follow exactly the client message
// contract and one producer can relay many users. Frames without a userId
// use the producer's own connection.
type Ingest struct {
	nc      *nats.Conn
	subject string
	relay   Producer
	logger  *zerolog.Logger

	mu    sync.Mutex
	conns map[string]core.ConnID
	sub   *nats.Subscription
}

// NewIngest creates an ingest subscriber. nc may be nil when only Deliver is used.
func NewIngest(nc *nats.Conn, subject string, relay Producer, logger *zerolog.Logger) *Ingest {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Ingest{
		nc:      nc,
		subject: subject,
		relay:   relay,
		logger:  logger,
		conns:   make(map[string]core.ConnID),
	}
}

// Start subscribes to <subject>.*. NATS delivers a subscription's messages
// sequentially, which keeps each producer's frames in order.
func (i *Ingest) Start() error {
	sub, err := i.nc.Subscribe(Subject(i.subject, "*"), func(msg *nats.Msg) {
		token := strings.TrimPrefix(msg.Subject, i.subject+".")
		i.Deliver(token, msg.Data)
	})
	if err != nil {
		return err
	}
	i.mu.Lock()
	i.sub = sub
	i.mu.Unlock()

	i.logger.Info().Str("subject", sub.Subject).Msg("nats ingest started")
	return nil
}

// Deliver hands one frame from producer to the relay.
func (i *Ingest) Deliver(producer string, frame []byte) {
	in, err := proto.Decode(frame)
	if err != nil {
		i.logger.Debug().Err(err).Str("producer", producer).Msg("ingest frame dropped")
		return
	}
	key := producer
	if in.UserID != nil {
		key = producer + "/" + strconv.FormatInt(*in.UserID, 10)
	}
	conn := i.connFor(key)
	if err := i.relay.Handle(conn, frame); err != nil {
		i.logger.Debug().Err(err).Str("producer", producer).Msg("ingest frame dropped")
	}
}

func (i *Ingest) connFor(key string) core.ConnID {
	i.mu.Lock()
	defer i.mu.Unlock()
	if id, ok := i.conns[key]; ok {
		return id
	}
	id := i.relay.Open(core.SinkFunc(func([]byte) error { return nil }))
	i.conns[key] = id
	i.logger.Debug().Str("producer", key).Str("conn_id", string(id)).Msg("ingest producer attached")
	return id
}

// Stop unsubscribes and closes every producer connection, which removes
// their memberships like any other disconnect.
func (i *Ingest) Stop() error {
	i.mu.Lock()
	sub := i.sub
	i.sub = nil
	conns := i.conns
	i.conns = make(map[string]core.ConnID)
	i.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	for _, id := range conns {
		i.relay.Close(id)
	}
	return err
}
