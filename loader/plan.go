package loader

import "math"

// Plan fixes the per-epoch accounting of a distributed run before any data
// flows. Every node plans with the same inputs and ends up with the same
// numbers, which is what keeps all of them stepping in lock step: no node
// may run out of batches before another.
type Plan struct {
	GlobalBatch   int // samples consumed per step across all nodes
	NumBatches    int // steps per epoch, after rounding to fill every worker
	WorkerBatches int // batches each loader worker contributes
	NumSamples    int // samples actually seen per epoch under this plan
}

// PlanBatches rounds an epoch of numSamples into whole per-worker batch
// counts. Ceil rounding repeats a few samples near the epoch boundary so
// no worker comes up short; floor rounding instead trims the ragged tail,
// deliberately undercounting.
func PlanBatches(numSamples, batchSize, worldSize, workers int, floor bool) Plan {
	round := math.Ceil
	if floor {
		round = math.Floor
	}
	global := batchSize * max(1, worldSize)
	numBatches := int(round(float64(numSamples) / float64(global)))
	numWorkers := max(1, workers)
	workerBatches := int(round(float64(numBatches) / float64(numWorkers)))
	numBatches = workerBatches * numWorkers
	return Plan{
		GlobalBatch:   global,
		NumBatches:    numBatches,
		WorkerBatches: workerBatches,
		NumSamples:    numBatches * global,
	}
}
