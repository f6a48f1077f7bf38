package core

import "time"

// Aggregator derives room-level values from RoomStore state.
type Aggregator struct {
	store *RoomStore
	now   func() time.Time
}

// NewAggregator creates an aggregator over store. A nil clock means time.Now.
func NewAggregator(store *RoomStore, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: store, now: now}
}

// AverageFocus is the mean focus score of members updated within the
// trailing window. Members outside the window, and members that joined but
// never reported a score, are excluded rather than counted as zero. An empty
// or all-stale room yields 0, so "no data" and "zero focus" are
// indistinguishable here.
func (a *Aggregator) AverageFocus(roomID string, window time.Duration) float64 {
	return averageFocus(a.store.Snapshot(roomID), a.now(), window)
}

func averageFocus(members []Membership, now time.Time, window time.Duration) float64 {
	var (
		sum   float64
		count int
	)
	for _, m := range members {
		if !m.Reported || !m.freshAt(now, window) {
			continue
		}
		sum += m.FocusScore
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
