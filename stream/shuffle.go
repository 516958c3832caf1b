package stream

import (
	"iter"
	"math/rand"
)

// Shuffle buffer sizes used by the built-in pipelines, one pair for shard
// order and one for decoded-sample order.
const (
	ShardShuffleBuffer   = 2000
	ShardShuffleInitial  = 500
	SampleShuffleBuffer  = 5000
	SampleShuffleInitial = 1000
)

// Shuffle reorders src through a bounded reservoir. Elements accumulate
// until the reservoir holds initial of them, then each step emits one
// resident chosen at random while new arrivals keep filling the reservoir
// up to buf. The window of disorder is therefore at most buf elements and
// memory stays bounded no matter how long the stream runs.
func Shuffle[T any](src iter.Seq[T], buf, initial int, rng *rand.Rand) iter.Seq[T] {
	if initial > buf {
		initial = buf
	}
	return func(yield func(T) bool) {
		next, stop := iter.Pull(src)
		defer stop()
		reservoir := make([]T, 0, buf)
		pick := func() T {
			k := rng.Intn(len(reservoir))
			v := reservoir[k]
			last := len(reservoir) - 1
			reservoir[k] = reservoir[last]
			var zero T
			reservoir[last] = zero
			reservoir = reservoir[:last]
			return v
		}
		for {
			v, ok := next()
			if !ok {
				break
			}
			reservoir = append(reservoir, v)
			if len(reservoir) < buf {
				if v2, ok2 := next(); ok2 {
					reservoir = append(reservoir, v2)
				}
			}
			if len(reservoir) >= initial {
				if !yield(pick()) {
					return
				}
			}
		}
		for len(reservoir) > 0 {
			if !yield(pick()) {
				return
			}
		}
	}
}

// Detshuffle is Shuffle with the RNG re-derived on every pass, so a given
// (seed policy, epoch) pair always produces the same order. One instance
// is meant to be iterated many times: each pass asks the tracker for the
// epoch and reseeds before touching src.
type Detshuffle[T any] struct {
	Buf     int
	Initial int
	Seeds   SeedPolicy
	Epoch   EpochTracker
}

// Run wraps src in the reshuffling pass.
func (d *Detshuffle[T]) Run(src iter.Seq[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		epoch := d.Epoch.Next()
		rng := rand.New(rand.NewSource(d.Seeds.Seed(epoch)))
		for v := range Shuffle(src, d.Buf, d.Initial, rng) {
			if !yield(v) {
				return
			}
		}
	}
}
