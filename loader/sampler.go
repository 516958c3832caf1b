package loader

import "math/rand"

// Samplers decide which dataset indices one epoch visits, and in which
// order. Indices is a pure function of the epoch: every rank calling it
// with the same epoch computes the same list, which is what lets the
// distributed proxy slice it consistently without any communication.

// Sampler yields one epoch's index list.
type Sampler interface {
	// Len is the number of indices per epoch.
	Len() int
	// Indices returns the epoch's index list. Deterministic per epoch.
	Indices(epoch int64) []int
}

// RandomSampler draws from [0, n): a fresh permutation per epoch, or num
// independent draws with replacement.
type RandomSampler struct {
	n           int
	num         int
	replacement bool
	seed        int64
}

// NewRandomSampler permutes all n indices each epoch.
func NewRandomSampler(n int, seed int64) *RandomSampler {
	return &RandomSampler{n: n, num: n, seed: seed}
}

// NewReplacementSampler draws num indices with replacement each epoch,
// letting several datasets of different lengths contribute the same
// sample count.
func NewReplacementSampler(n, num int, seed int64) *RandomSampler {
	return &RandomSampler{n: n, num: num, replacement: true, seed: seed}
}

// Len implements Sampler.
func (s *RandomSampler) Len() int { return s.num }

// Indices implements Sampler.
func (s *RandomSampler) Indices(epoch int64) []int {
	rng := rand.New(rand.NewSource(s.seed + epoch))
	if s.replacement {
		out := make([]int, s.num)
		for i := range out {
			out[i] = rng.Intn(s.n)
		}
		return out
	}
	return rng.Perm(s.n)
}

// DistributedProxySampler slices a base sampler across ranks. Every rank
// computes the identical full list, pads it to a multiple of the world
// size by wrapping around to the front, then keeps positions rank,
// rank+world, rank+2*world and so on. The slices are disjoint and cover
// the padded list exactly.
type DistributedProxySampler struct {
	Base      Sampler
	WorldSize int
	Rank      int
}

// Len implements Sampler: the per-rank share of the padded list.
func (s *DistributedProxySampler) Len() int {
	world := max(1, s.WorldSize)
	return (s.Base.Len() + world - 1) / world
}

// Indices implements Sampler.
func (s *DistributedProxySampler) Indices(epoch int64) []int {
	all := s.Base.Indices(epoch)
	world := max(1, s.WorldSize)
	if rem := len(all) % world; rem != 0 {
		all = append(all, all[:world-rem]...)
	}
	out := make([]int, 0, len(all)/world)
	for i := s.Rank; i < len(all); i += world {
		out = append(out, all[i])
	}
	return out
}
