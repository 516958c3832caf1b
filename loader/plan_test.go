package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPlanBatchesCeil rounds up so every worker contributes full batches,
// repeating a few samples near the boundary.
func TestPlanBatchesCeil(t *testing.T) {
	p := PlanBatches(1000, 8, 4, 2, false)
	assert.Equal(t, 32, p.GlobalBatch)
	assert.Equal(t, 32, p.NumBatches)
	assert.Equal(t, 16, p.WorkerBatches)
	assert.Equal(t, 1024, p.NumSamples)
}

// TestPlanBatchesFloor trims the ragged tail instead.
func TestPlanBatchesFloor(t *testing.T) {
	p := PlanBatches(1000, 8, 4, 2, true)
	assert.Equal(t, 32, p.GlobalBatch)
	assert.Equal(t, 30, p.NumBatches)
	assert.Equal(t, 15, p.WorkerBatches)
	assert.Equal(t, 960, p.NumSamples)
}

// TestPlanBatchesExact changes nothing when the epoch divides evenly.
func TestPlanBatchesExact(t *testing.T) {
	for _, floor := range []bool{false, true} {
		p := PlanBatches(960, 8, 4, 2, floor)
		assert.Equal(t, 30, p.NumBatches)
		assert.Equal(t, 960, p.NumSamples)
	}
}

// TestPlanBatchesDegenerateGeometry treats missing world size and worker
// counts as one.
func TestPlanBatchesDegenerateGeometry(t *testing.T) {
	p := PlanBatches(100, 10, 0, 0, false)
	assert.Equal(t, 10, p.GlobalBatch)
	assert.Equal(t, 10, p.NumBatches)
	assert.Equal(t, 10, p.WorkerBatches)
	assert.Equal(t, 100, p.NumSamples)
}
