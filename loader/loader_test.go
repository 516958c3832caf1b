package loader

import (
	"errors"
	"io"
	"iter"
	"sync/atomic"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPass yields n empty batches per worker and counts how many
// passes were started.
func countingPass(n int, passes *atomic.Int64) func(worker int) iter.Seq[batch] {
	return func(worker int) iter.Seq[batch] {
		return func(yield func(batch) bool) {
			passes.Add(1)
			for i := 0; i < n; i++ {
				if !yield(batch{}) {
					return
				}
			}
		}
	}
}

// drain pulls until io.EOF, returning the batch and error counts.
func drain(t *testing.T, l *Loader) (batches, failures int) {
	t.Helper()
	for {
		_, _, _, err := l.Yield()
		if err == io.EOF {
			return batches, failures
		}
		if err != nil {
			failures++
			continue
		}
		batches++
	}
}

// TestLoaderDrainsAllWorkers merges every worker's batches into one epoch
// and then sticks at io.EOF.
func TestLoaderDrainsAllWorkers(t *testing.T) {
	var passes atomic.Int64
	l := newLoader("test", 3, countingPass(4, &passes))
	assert.Equal(t, "test", l.Name())

	batches, failures := drain(t, l)
	assert.Equal(t, 12, batches)
	assert.Zero(t, failures)
	assert.Equal(t, int64(3), passes.Load())

	for i := 0; i < 3; i++ {
		_, _, _, err := l.Yield()
		require.Equal(t, io.EOF, err, "EOF should be sticky")
	}
}

// TestLoaderReset arms a fresh epoch whether the previous one was
// finished or abandoned midway.
func TestLoaderReset(t *testing.T) {
	var passes atomic.Int64
	l := newLoader("test", 2, countingPass(3, &passes))

	batches, _ := drain(t, l)
	require.Equal(t, 6, batches)

	l.Reset()
	batches, _ = drain(t, l)
	assert.Equal(t, 6, batches, "second epoch should be full")
	assert.Equal(t, int64(4), passes.Load())

	// abandon an epoch after one batch
	_, _, _, err := l.Yield()
	require.NoError(t, err)
	l.Reset()
	batches, _ = drain(t, l)
	assert.Equal(t, 6, batches, "epoch after an abandoned one should be full")
}

// TestLoaderErrorPropagation surfaces a worker's failed batch through
// Yield without ending the epoch.
func TestLoaderErrorPropagation(t *testing.T) {
	boom := errors.New("boom")
	l := newLoader("test", 1, func(worker int) iter.Seq[batch] {
		return func(yield func(batch) bool) {
			if !yield(batch{err: boom}) {
				return
			}
			yield(batch{})
		}
	})

	var sawError, sawGood bool
	for {
		_, _, _, err := l.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			require.ErrorIs(t, err, boom)
			sawError = true
			continue
		}
		sawGood = true
	}
	assert.True(t, sawError)
	assert.True(t, sawGood)
}

// TestCountSamples totals the leading axis across an epoch.
func TestCountSamples(t *testing.T) {
	l := newLoader("test", 1, func(worker int) iter.Seq[batch] {
		return func(yield func(batch) bool) {
			for i := 0; i < 3; i++ {
				in := tensors.FromFlatDataAndDimensions(make([]float32, 4*2), 4, 2)
				if !yield(batch{inputs: []*tensors.Tensor{in}}) {
					return
				}
			}
		}
	})

	elements, batches, err := CountSamples(l)
	require.NoError(t, err)
	assert.Equal(t, 3, batches)
	assert.Equal(t, 12, elements)
}
