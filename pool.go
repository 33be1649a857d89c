package manifold

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Pool lifecycle states
const (
	poolOpen int32 = iota
	poolClosed
	poolJoined
)

// Pool is a bounded set of worker goroutines executing submitted chunk
// tasks. A pool is either owned by the executor that created it, which must
// Close and Join it after consuming all results, or borrowed through a
// Scope, in which case only the Scope closes it. Lifecycle transitions
// happen exactly once; violations are programmer errors and panic.
type Pool struct {
	workers int
	tasks   chan func()
	group   errgroup.Group
	state   atomic.Int32

	submitted atomic.Int64
	completed atomic.Int64
}

// NewPool starts a pool of the given number of worker goroutines.
func NewPool(workers int) *Pool {
	if workers < 1 {
		panic("manifold.NewPool: workers must be positive")
	}
	p := &Pool{
		workers: workers,
		tasks:   make(chan func(), workers),
	}
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for task := range p.tasks {
				task()
				p.completed.Add(1)
			}
			return nil
		})
	}
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// TasksSubmitted returns the number of tasks dispatched over the pool's
// lifetime.
func (p *Pool) TasksSubmitted() int64 {
	return p.submitted.Load()
}

// TasksCompleted returns the number of tasks that have finished.
func (p *Pool) TasksCompleted() int64 {
	return p.completed.Load()
}

// Close stops the pool from accepting new work. The owner calls it exactly
// once, after every submitted result stream has been consumed or drained.
// Closing twice panics.
func (p *Pool) Close() {
	if !p.state.CompareAndSwap(poolOpen, poolClosed) {
		panic("manifold.Pool: Close called twice")
	}
	close(p.tasks)
}

// Join blocks until all workers have exited. Close must precede it; joining
// before closing, or twice, panics.
func (p *Pool) Join() {
	if !p.state.CompareAndSwap(poolClosed, poolJoined) {
		if p.state.Load() == poolOpen {
			panic("manifold.Pool: Join called before Close")
		}
		panic("manifold.Pool: Join called twice")
	}
	_ = p.group.Wait()
}

func (p *Pool) dispatch(task func()) {
	if p.state.Load() != poolOpen {
		panic("manifold.Pool: submit on closed pool")
	}
	p.submitted.Add(1)
	p.tasks <- task
}

// result carries one element's outcome through a pool-backed stream.
type result[O any] struct {
	value O
	err   error
}

// chunkResult is one task's worth of results, tagged with the chunk's
// position in the input for ordered delivery.
type chunkResult[O any] struct {
	index   int
	results []result[O]
}

// slicePool recycles chunk buffers between the feeder and the workers.
type slicePool[T any] struct {
	pool sync.Pool
}

func newSlicePool[T any](capacity int) *slicePool[T] {
	return &slicePool[T]{
		pool: sync.Pool{New: func() any {
			buf := make([]T, 0, capacity)
			return &buf
		}},
	}
}

func (sp *slicePool[T]) get() []T {
	return (*sp.pool.Get().(*[]T))[:0]
}

func (sp *slicePool[T]) put(buf []T) {
	sp.pool.Put(&buf)
}

// Submit dispatches fn over every element of source using the pool's
// workers, grouping elements into chunks of chunkSize per task. The returned
// stream yields one result per input element: ordered delivery follows the
// input order, buffering chunks that complete early; unordered delivery
// yields chunks as they finish. Per-element errors surface in-stream at the
// failing element's position.
//
// Dispatch starts immediately and the feeder takes ownership of source; the
// caller must not pull from it afterwards. Consuming the returned stream
// blocks while no result is ready. The stream must be consumed to its end
// (or drained, or its context cancelled) before an owned pool is closed: a
// terminal Next result means the submission has gone quiet and the pool is
// safe to close.
func Submit[I, O any](ctx context.Context, pool *Pool, source *Stream[I], fn func(context.Context, I) (O, error), chunkSize int, ordered bool) *Stream[O] {
	if pool == nil {
		panic("manifold.Submit: pool cannot be nil")
	}
	if source == nil {
		source = EmptyStream[I]()
	}
	if chunkSize < 1 {
		chunkSize = 1
	}

	subCtx, cancel := context.WithCancel(ctx)
	results := make(chan chunkResult[O], pool.workers)
	fed := make(chan struct{})
	var total atomic.Int64
	bufs := newSlicePool[I](chunkSize)

	// Feed chunks to the pool from a dedicated goroutine so slow workers
	// backpressure the feeder through the task channel, not the caller.
	go func() {
		defer close(fed)
		chunks := 0
		for {
			if subCtx.Err() != nil {
				break
			}
			buf := bufs.get()
			var srcErr error
			exhausted := false
			for len(buf) < chunkSize {
				v, err := source.Next()
				if err != nil {
					exhausted = true
					if !errors.Is(err, ErrEndOfStream) {
						srcErr = err
					}
					break
				}
				buf = append(buf, v)
			}
			if len(buf) == 0 && srcErr == nil {
				bufs.put(buf)
				break
			}

			index := chunks
			chunks++
			chunk := buf
			chunkErr := srcErr
			pool.dispatch(func() {
				out := chunkResult[O]{
					index:   index,
					results: make([]result[O], 0, len(chunk)+1),
				}
				for _, item := range chunk {
					if subCtx.Err() != nil {
						break
					}
					v, err := fn(subCtx, item)
					out.results = append(out.results, result[O]{value: v, err: err})
				}
				if chunkErr != nil {
					// The source failed after these items; its error rides
					// at the matching position.
					out.results = append(out.results, result[O]{err: chunkErr})
				}
				bufs.put(chunk)
				select {
				case results <- out:
				case <-subCtx.Done():
				}
			})
			if exhausted {
				break
			}
		}
		total.Store(int64(chunks))
	}()

	// finish quiesces the submission: workers drop pending sends, the
	// feeder stops, and the pool becomes safe for its owner to close.
	var finishOnce sync.Once
	finish := func() {
		finishOnce.Do(func() {
			cancel()
			<-fed
		})
	}

	var pendingOut []result[O]
	var buffered map[int][]result[O]
	if ordered {
		buffered = make(map[int][]result[O])
	}
	nextIndex := 0
	delivered := 0
	fedClosed := false

	nextChunkResults := func() ([]result[O], error) {
		for {
			if ordered {
				if rs, ok := buffered[nextIndex]; ok {
					delete(buffered, nextIndex)
					nextIndex++
					delivered++
					return rs, nil
				}
			}
			if fedClosed && int64(delivered) >= total.Load() {
				return nil, ErrEndOfStream
			}

			var cr chunkResult[O]
			if fedClosed {
				select {
				case cr = <-results:
				case <-subCtx.Done():
					return nil, subCtx.Err()
				}
			} else {
				select {
				case cr = <-results:
				case <-fed:
					fedClosed = true
					continue
				case <-subCtx.Done():
					return nil, subCtx.Err()
				}
			}
			if !ordered {
				delivered++
				return cr.results, nil
			}
			buffered[cr.index] = cr.results
		}
	}

	return NewStream(func() (O, error) {
		var zero O
		for {
			if len(pendingOut) > 0 {
				r := pendingOut[0]
				pendingOut = pendingOut[1:]
				if r.err != nil {
					finish()
					return zero, r.err
				}
				return r.value, nil
			}
			rs, err := nextChunkResults()
			if err != nil {
				finish()
				return zero, err
			}
			pendingOut = rs
		}
	})
}
