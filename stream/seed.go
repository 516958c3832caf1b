package stream

import (
	"encoding/binary"
	"hash/crc32"
)

// SeedPolicy derives the RNG seed a seeded stage uses for one pass.
//
// A Base of zero or more gives every rank and worker the same seed for a
// given epoch, Base+epoch, which keeps shard order aligned across nodes so
// round-robin splitting stays a true partition. A negative Base gives each
// worker its own stream: a seed mixed from (Rank, Worker), stepped per
// epoch with a stride of max(1, Workers) so consecutive epochs of
// neighbouring workers never land on the same seed.
type SeedPolicy struct {
	Base    int64
	Rank    int
	Worker  int
	Workers int
}

// Seed returns the seed for the given epoch.
func (p SeedPolicy) Seed(epoch int64) int64 {
	if p.Base >= 0 {
		return p.Base + epoch
	}
	return workerBaseSeed(p.Rank, p.Worker) + epoch*int64(max(1, p.Workers))
}

// workerBaseSeed hashes the worker identity into a stable seed. crc32 keeps
// nearby (rank, worker) pairs far apart without pulling in a heavier hash.
func workerBaseSeed(rank, worker int) int64 {
	h := crc32.NewIEEE()
	_ = binary.Write(h, binary.LittleEndian, int64(rank))
	_ = binary.Write(h, binary.LittleEndian, int64(worker))
	return int64(h.Sum32())
}
