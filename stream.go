package manifold

import (
	"errors"
)

// ErrEndOfStream signals that a stream has no further elements. Compare with
// errors.Is.
var ErrEndOfStream = errors.New("end of stream")

// Stream is a lazy, single-pass sequence of values. Next returns elements
// one at a time until it reports ErrEndOfStream; an element error is
// returned at the failing element's position, after which the stream is
// exhausted. Streams cannot be restarted and are not safe for concurrent
// use.
type Stream[T any] struct {
	pull    func() (T, error)
	hint    int
	hasHint bool
	done    bool
}

// NewStream wraps pull as a Stream. pull reports ErrEndOfStream when no
// elements remain; it is never called again after returning any error.
func NewStream[T any](pull func() (T, error)) *Stream[T] {
	if pull == nil {
		panic("manifold.NewStream: pull cannot be nil")
	}
	return &Stream[T]{pull: pull}
}

// StreamOf builds a stream over the given elements. The element count is
// exposed through LengthHint.
func StreamOf[T any](items ...T) *Stream[T] {
	i := 0
	s := NewStream(func() (T, error) {
		if i >= len(items) {
			var zero T
			return zero, ErrEndOfStream
		}
		v := items[i]
		i++
		return v, nil
	})
	s.hint = len(items)
	s.hasHint = true
	return s
}

// EmptyStream returns a stream with no elements.
func EmptyStream[T any]() *Stream[T] {
	return StreamOf[T]()
}

// DeferStream returns a stream whose underlying stream is built on first
// pull. open runs at most once; an open failure is surfaced by the first
// Next and the stream is exhausted afterwards.
func DeferStream[T any](open func() (*Stream[T], error)) *Stream[T] {
	if open == nil {
		panic("manifold.DeferStream: open cannot be nil")
	}
	var inner *Stream[T]
	return NewStream(func() (T, error) {
		if inner == nil {
			var err error
			inner, err = open()
			if err != nil {
				var zero T
				return zero, err
			}
			if inner == nil {
				inner = EmptyStream[T]()
			}
		}
		return inner.Next()
	})
}

// MapStream applies fn to each element of src as the result is pulled. No
// goroutines are involved; laziness and blocking behavior follow src.
func MapStream[I, O any](src *Stream[I], fn func(I) (O, error)) *Stream[O] {
	out := NewStream(func() (O, error) {
		v, err := src.Next()
		if err != nil {
			var zero O
			return zero, err
		}
		return fn(v)
	})
	out.hint, out.hasHint = src.hint, src.hasHint
	return out
}

// Multiplex flattens one level of per-item results into a single lazy
// sequence. An element of type []any contributes its elements in order, and
// an empty slice contributes nothing; any other element, including a
// map-shaped item, passes through as a single result and is never iterated.
func Multiplex[T any](in *Stream[T]) *Stream[any] {
	var pending []any
	return NewStream(func() (any, error) {
		for {
			if len(pending) > 0 {
				v := pending[0]
				pending = pending[1:]
				return v, nil
			}
			elem, err := in.Next()
			if err != nil {
				return nil, err
			}
			switch group := any(elem).(type) {
			case []any:
				pending = group
			default:
				return group, nil
			}
		}
	})
}

// Next returns the stream's next element. After the final element it returns
// ErrEndOfStream; after any error the stream stays exhausted.
func (s *Stream[T]) Next() (T, error) {
	var zero T
	if s.done {
		return zero, ErrEndOfStream
	}
	v, err := s.pull()
	if err != nil {
		s.done = true
		return zero, err
	}
	return v, nil
}

// Collect drains the stream into a slice. An element error aborts the drain
// and is returned in place of the elements.
func (s *Stream[T]) Collect() ([]T, error) {
	out := []T{}
	if s.hasHint && s.hint > 0 {
		out = make([]T, 0, s.hint)
	}
	for {
		v, err := s.Next()
		if errors.Is(err, ErrEndOfStream) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// Drain consumes and discards the remainder of the stream, returning the
// element error that ended it, if any. Draining an abandoned pool-backed
// stream releases its workers.
func (s *Stream[T]) Drain() error {
	for {
		_, err := s.Next()
		if errors.Is(err, ErrEndOfStream) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// LengthHint reports the element count the stream was constructed over, when
// one is known. Streams over lazy producers report no hint.
func (s *Stream[T]) LengthHint() (int, bool) {
	if s == nil {
		return 0, false
	}
	return s.hint, s.hasHint
}
