package shards

import (
	"iter"
	"math/rand"

	"github.com/webshard/webshard/stream"
)

// Resampler draws shards uniformly with replacement, giving every worker
// an endless independent stream no matter how few shards exist. It
// replaces the shuffle-and-split arrangement: each worker draws from the
// full list, so no partition precondition applies.
type Resampler struct {
	URLs []string
	// Draws bounds one pass; 0 draws without limit, leaving termination
	// to a downstream stage.
	Draws int
	// Seeds should carry a negative Base so each worker draws its own
	// sequence; the epoch from the tracker steps the seed every pass.
	Seeds stream.SeedPolicy
	Epoch stream.EpochTracker
}

// Shards returns the draw sequence. Each pass over it re-reads the epoch
// and reseeds, so a given (policy, epoch) pair replays identically.
func (r *Resampler) Shards() iter.Seq[string] {
	return func(yield func(string) bool) {
		epoch := r.Epoch.Next()
		rng := rand.New(rand.NewSource(r.Seeds.Seed(epoch)))
		for i := 0; r.Draws <= 0 || i < r.Draws; i++ {
			if !yield(r.URLs[rng.Intn(len(r.URLs))]) {
				return
			}
		}
	}
}
