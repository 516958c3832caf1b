package loader

import (
	"io"
	"iter"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// batch is one yield unit moving from a worker goroutine to the trainer.
type batch struct {
	inputs []*tensors.Tensor
	labels []*tensors.Tensor
	err    error
}

// Loader merges the output of a set of worker goroutines into the
// train.Dataset contract. Each worker runs one pass sequence per epoch;
// batches surface in completion order, the epoch ends with io.EOF once
// every worker finished, and Reset arms the next pass.
//
// The pass function is called once per worker per epoch and must return a
// fresh sequence each time; epoch-sensitive stages inside it are expected
// to read the shared epoch clock when the sequence starts.
type Loader struct {
	name    string
	workers int
	pass    func(worker int) iter.Seq[batch]

	// Epoch accounting from the batch plan, fixed at construction.
	NumBatches int
	NumSamples int

	mu       sync.Mutex
	out      chan batch
	quit     chan struct{}
	finished chan struct{}
	running  bool
}

func newLoader(name string, workers int, pass func(worker int) iter.Seq[batch]) *Loader {
	return &Loader{name: name, workers: max(1, workers), pass: pass}
}

// Name implements train.Dataset.
func (l *Loader) Name() string { return l.name }

// start launches the epoch's workers. Caller holds l.mu.
func (l *Loader) start() {
	l.out = make(chan batch, l.workers)
	l.quit = make(chan struct{})
	l.finished = make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < l.workers; w++ {
		wg.Add(1)
		go func(w int, out chan batch, quit chan struct{}) {
			defer wg.Done()
			for b := range l.pass(w) {
				select {
				case out <- b:
				case <-quit:
					return
				}
			}
		}(w, l.out, l.quit)
	}
	finished := l.finished
	go func() {
		wg.Wait()
		close(finished)
	}()
	l.running = true
}

// Yield implements train.Dataset. The first call of an epoch starts the
// workers; once all of them are done and the buffer is drained every call
// returns io.EOF until Reset.
func (l *Loader) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	l.mu.Lock()
	if !l.running {
		l.start()
	}
	out, finished := l.out, l.finished
	l.mu.Unlock()

	select {
	case b := <-out:
		return nil, b.inputs, b.labels, b.err
	case <-finished:
		select {
		case b := <-out:
			return nil, b.inputs, b.labels, b.err
		default:
			return nil, nil, nil, io.EOF
		}
	}
}

// Reset implements train.Dataset: abandon any in-flight pass and arm the
// next one. Call it after moving the epoch clock so the new pass shuffles
// with the new epoch's seeds.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		close(l.quit)
		l.running = false
	}
}

var _ train.Dataset = (*Loader)(nil)

// CountSamples drains ds, counting batches and leading-axis elements.
// Useful for checking a pipeline end to end against its plan.
func CountSamples(ds train.Dataset) (elements, batches int, err error) {
	for {
		_, inputs, _, err := ds.Yield()
		if err == io.EOF {
			return elements, batches, nil
		}
		if err != nil {
			return elements, batches, err
		}
		batches++
		if len(inputs) > 0 && len(inputs[0].Shape().Dimensions) > 0 {
			elements += inputs[0].Shape().Dimensions[0]
		}
	}
}
