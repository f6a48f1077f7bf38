package core

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder is a Sink that keeps every decoded frame it receives.
type recorder struct {
	mu     sync.Mutex
	frames []map[string]any
	gone   bool
}

func (r *recorder) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone {
		return ErrConnectionGone
	}
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recorder) ofType(typ string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	for _, f := range r.frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type testPeer struct {
	id  ConnID
	out *recorder
}

func newTestHub(t *testing.T, clock *fakeClock) *Hub {
	t.Helper()
	return NewHub(Options{Window: 30 * time.Second, Now: clock.Now})
}

func connect(h *Hub) testPeer {
	out := &recorder{}
	return testPeer{id: h.Open(out), out: out}
}

func send(t *testing.T, h *Hub, p testPeer, frame string) {
	t.Helper()
	require.NoError(t, h.Handle(p.id, []byte(frame)))
}

func lastOfType(t *testing.T, r *recorder, typ string) map[string]any {
	t.Helper()
	frames := r.ofType(typ)
	require.NotEmpty(t, frames, "no %s frame received", typ)
	return frames[len(frames)-1]
}
