package shards

import (
	"fmt"
	"iter"
)

// Distributed runs deal shards round robin, first across nodes and then
// across the loader workers inside each node. Both splits are lazy stream
// stages so they compose after the shard-order shuffle: the shuffle must
// run first, on the full list with an aligned seed, for the per-node
// slices to remain a true partition.

// SplitByNode keeps the shards assigned to one node: positions rank,
// rank+worldSize, rank+2*worldSize and so on. With a world size below two
// the stream passes through untouched.
func SplitByNode(src iter.Seq[string], rank, worldSize int) iter.Seq[string] {
	return stride(src, rank, worldSize)
}

// SplitByWorker keeps the shards assigned to one loader worker within a
// node, striding the node's stream the same way.
func SplitByWorker(src iter.Seq[string], worker, numWorkers int) iter.Seq[string] {
	return stride(src, worker, numWorkers)
}

func stride(src iter.Seq[string], offset, step int) iter.Seq[string] {
	if step <= 1 {
		return src
	}
	return func(yield func(string) bool) {
		i := 0
		for url := range src {
			if i%step == offset && !yield(url) {
				return
			}
			i++
		}
	}
}

// CheckSplit fails when the shard list cannot cover every worker of every
// node with at least one shard. Splitting a smaller list would leave some
// workers permanently empty, so this is checked before training starts.
func CheckSplit(numShards, worldSize, workersPerNode int) error {
	need := max(1, worldSize) * max(1, workersPerNode)
	if numShards < need {
		return fmt.Errorf("%d shards cannot feed %d workers across %d nodes; need at least %d shards",
			numShards, workersPerNode, worldSize, need)
	}
	return nil
}
