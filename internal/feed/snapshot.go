package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/focusrelay/internal/proto"
)

// RoomSource provides the rooms to snapshot.
type RoomSource interface {
	RoomIDs() []string
	Snapshot(roomID string) proto.MeetingState
}

// Publisher receives encoded snapshots.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PublisherFunc is a function adapter for Publisher.
type PublisherFunc func(ctx context.Context, subject string, data []byte) error

func (f PublisherFunc) Publish(ctx context.Context, subject string, data []byte) error {
	return f(ctx, subject, data)
}

// Config holds snapshot feed configuration.
type Config struct {
	Interval time.Duration // Publish interval
	Subject  string        // Subject prefix; the room id is appended
	Timeout  time.Duration // Per-publish timeout (default: 5s)
}

// SnapshotFeed periodically publishes every live room's meeting_state.
type SnapshotFeed struct {
	cfg    Config
	rooms  RoomSource
	pub    Publisher
	logger *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSnapshotFeed creates a new SnapshotFeed.
func NewSnapshotFeed(cfg Config, rooms RoomSource, pub Publisher, logger *zerolog.Logger) *SnapshotFeed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SnapshotFeed{
		cfg:    cfg,
		rooms:  rooms,
		pub:    pub,
		logger: logger,
	}
}

// Start begins the publish loop.
func (f *SnapshotFeed) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.run()

	f.logger.Info().
		Dur("interval", f.cfg.Interval).
		Str("subject", f.cfg.Subject).
		Msg("snapshot feed started")

	return nil
}

// Stop gracefully shuts down the feed.
func (f *SnapshotFeed) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info().Msg("snapshot feed stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *SnapshotFeed) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.publishAll()
		}
	}
}

// publishAll publishes one snapshot per room. Rooms are read one at a time,
// so a cycle is not a consistent cut across rooms.
func (f *SnapshotFeed) publishAll() {
	start := time.Now()
	ids := f.rooms.RoomIDs()
	if len(ids) == 0 {
		f.logger.Debug().Msg("no rooms to publish")
		return
	}

	published, failed := 0, 0
	for _, id := range ids {
		if f.ctx.Err() != nil {
			return
		}
		if err := f.publishRoom(id); err != nil {
			f.logger.Warn().Err(err).Str("room_id", id).Msg("failed to publish snapshot")
			failed++
			continue
		}
		published++
	}

	f.logger.Debug().
		Int("rooms", len(ids)).
		Int("published", published).
		Int("errors", failed).
		Dur("duration", time.Since(start)).
		Msg("snapshot cycle complete")
}

func (f *SnapshotFeed) publishRoom(roomID string) error {
	snap := f.rooms.Snapshot(roomID)
	if len(snap.Members) == 0 {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(f.ctx, f.cfg.Timeout)
	defer cancel()
	return f.pub.Publish(ctx, Subject(f.cfg.Subject, roomID), data)
}

// Subject joins a subject prefix and a token.
func Subject(prefix, token string) string {
	if prefix == "" {
		return token
	}
	return prefix + "." + token
}
