// Package fallback is the pure-Go CPU engine.
package fallback

import (
	"runtime"

	"k8s.io/examples/AI/graphscore/pkg/engine"
)

type Engine struct {
	parallelism int
}

var _ engine.Engine = (*Engine)(nil)

type Option func(*Engine)

// WithParallelism bounds the number of goroutines a single kernel call uses.
// Values below 2 run every kernel on the calling goroutine.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		parallelism: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Device() engine.Device {
	return engine.DeviceCPU
}

func (e *Engine) Parallelism() int {
	return e.parallelism
}

func (e *Engine) SegmentReduce(values *engine.Tensor[float32], index *engine.Tensor[int64], dim int, kind engine.ReduceKind, dimSize int) (*engine.Reduction[float32], error) {
	return SegmentReduce(values, index, dim, kind, dimSize, e.parallelism)
}
