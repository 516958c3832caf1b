package stream

import "sync/atomic"

// SharedEpoch publishes the trainer's current epoch to every stage of a
// pipeline. The trainer is the single writer; worker goroutines read it at
// the start of each pass so their reshuffles line up.
type SharedEpoch struct {
	v atomic.Int64
}

// NewSharedEpoch returns a clock starting at epoch.
func NewSharedEpoch(epoch int) *SharedEpoch {
	s := &SharedEpoch{}
	s.Set(epoch)
	return s
}

// Set moves the clock. Called between epochs, never during one.
func (s *SharedEpoch) Set(epoch int) { s.v.Store(int64(epoch)) }

// Get reads the clock.
func (s *SharedEpoch) Get() int { return int(s.v.Load()) }

// EpochTracker hands a stage the epoch for the pass about to start.
//
// A stage built without a SharedEpoch counts its own passes instead. The
// private count drifts once buffered stages start passes at different
// times, so the fallback only suits single-stage or single-worker use;
// training pipelines give every stage the same clock.
type EpochTracker struct {
	Shared *SharedEpoch

	passes int64
}

// Next returns the epoch for the next pass.
func (t *EpochTracker) Next() int64 {
	if t.Shared != nil {
		return int64(t.Shared.Get())
	}
	epoch := t.passes
	t.passes++
	return epoch
}
