package stream

import "iter"

// Small generic transforms the pipelines are composed from. Each one is
// lazy and restartable: ranging over the result a second time replays the
// transform over a fresh pass of its source.

// Filter keeps the elements of src for which keep returns true.
func Filter[T any](src iter.Seq[T], keep func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range src {
			if keep(v) && !yield(v) {
				return
			}
		}
	}
}

// Map transforms each element of src with f. When f fails the element is
// dropped and the error goes to the handler; the stream ends early if the
// handler says stop.
func Map[In, Out any](src iter.Seq[In], f func(In) (Out, error), h Handler) iter.Seq[Out] {
	return func(yield func(Out) bool) {
		for v := range src {
			out, err := f(v)
			if err != nil {
				if !h(err) {
					return
				}
				continue
			}
			if !yield(out) {
				return
			}
		}
	}
}

// Limit passes through at most n elements. n <= 0 means no limit.
func Limit[T any](src iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			for v := range src {
				if !yield(v) {
					return
				}
			}
			return
		}
		left := n
		for v := range src {
			if !yield(v) {
				return
			}
			left--
			if left == 0 {
				return
			}
		}
	}
}

// Batched groups consecutive elements into slices of n. A short final
// group is dropped unless partial is true.
func Batched[T any](src iter.Seq[T], n int, partial bool) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		batch := make([]T, 0, n)
		for v := range src {
			batch = append(batch, v)
			if len(batch) == n {
				if !yield(batch) {
					return
				}
				batch = make([]T, 0, n)
			}
		}
		if partial && len(batch) > 0 {
			yield(batch)
		}
	}
}
