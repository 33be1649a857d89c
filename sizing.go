package manifold

import (
	"reflect"
	"runtime"
)

// Workload classifies parallel work for pool sizing. I/O-bound stages spend
// most of their time waiting, so they get double the per-CPU worker budget.
type Workload string

const (
	// CPUBound sizes the pool at one worker per CPU.
	CPUBound Workload = "cpu"
	// IOBound sizes the pool at two workers per CPU.
	IOBound Workload = "io"
)

// DefaultLengthEstimate is the assumed input length when a source exposes no
// sizing information.
const DefaultLengthEstimate = 50

// Counter reports an exact element count.
type Counter interface {
	Count() int
}

// LengthHinter reports an approximate element count when one is known.
type LengthHinter interface {
	LengthHint() (int, bool)
}

// WorkerCount returns the pool size for an input of the given length: the
// smaller of the input length (at least 1) and the CPU budget for the
// workload class.
func WorkerCount(length int, workload Workload) int {
	if length < 1 {
		length = 1
	}
	budget := runtime.NumCPU()
	if workload == IOBound {
		budget *= 2
	}
	if length < budget {
		return length
	}
	return budget
}

// ChunkSize returns how many items each pool task should carry, targeting
// four chunks per worker so stragglers rebalance. Never less than 1.
func ChunkSize(length, workers int) int {
	if workers < 1 {
		workers = 1
	}
	size := length / (workers * 4)
	if size < 1 {
		size = 1
	}
	return size
}

// LengthEstimate guesses the element count of source without materializing
// it: an exact Counter wins, then a LengthHinter, then the native length of
// slices, arrays, maps, strings and channels. Anything else, including nil,
// yields fallback. Lazy sources degrade to a fixed guess instead of being
// forced.
func LengthEstimate(source any, fallback int) int {
	switch src := source.(type) {
	case nil:
		return fallback
	case Counter:
		return src.Count()
	case LengthHinter:
		if n, ok := src.LengthHint(); ok {
			return n
		}
		return fallback
	}
	v := reflect.ValueOf(source)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return v.Len()
	default:
		return fallback
	}
}
