package fallback

import (
	"slices"

	"github.com/pkg/errors"

	"k8s.io/examples/AI/graphscore/pkg/engine"
)

// SegmentReduce combines the elements of values into groups along dim.
//
// index holds the group id of each position along dim and is broadcast
// against values with engine.Broadcast, so a rank-1 index of length
// values.Dim(dim) applies the same grouping to every other coordinate.
// The result has the dimensions of values except at dim, where the extent is
// dimSize, or max(index)+1 when dimSize is engine.InferDimSize (0 for an
// empty index).
//
// Every group id is checked before anything is computed: negative ids, and
// ids at or beyond an explicit dimSize, fail with engine.ErrIndex.
//
// Work is split by lane (every coordinate except dim). A lane owns all the
// output slots it writes, so workers never contend and the result does not
// depend on parallelism.
func SegmentReduce[T engine.Number](values *engine.Tensor[T], index *engine.Tensor[int64], dim int, kind engine.ReduceKind, dimSize int, parallelism int) (*engine.Reduction[T], error) {
	if !kind.Valid() {
		return nil, errors.Wrapf(engine.ErrConfig, "unknown reduction %v", kind)
	}

	dims := values.Dims()
	axis, err := engine.NormalizeAxis(dim, len(dims))
	if err != nil {
		return nil, err
	}
	groups, err := engine.Broadcast(index, dims, axis)
	if err != nil {
		return nil, errors.WithMessagef(err, "%v reduction", kind)
	}
	size, err := resolveDimSize(index.Data(), dimSize)
	if err != nil {
		return nil, err
	}

	outDims := slices.Clone(dims)
	outDims[axis] = size
	extent := dims[axis]
	outer := engine.NumElements(dims[:axis])
	inner := engine.NumElements(dims[axis+1:])

	r := newReducer[T](kind, outer*size*inner)
	data := values.Data()
	parallelFor(outer*inner, parallelism, func(start, end int) {
		for lane := start; lane < end; lane++ {
			o, i := lane/inner, lane%inner
			l := groups.Lane(axis, o, i)
			for d := range extent {
				g := int(groups.ValueAt(l.Base + d*l.Stride))
				r.combine((o*size+g)*inner+i, data[(o*extent+d)*inner+i], int64(d))
			}
		}
	})
	return r.finish(outDims, extent)
}

func resolveDimSize(index []int64, dimSize int) (int, error) {
	maxID := int64(-1)
	for pos, id := range index {
		if id < 0 {
			return 0, errors.Wrapf(engine.ErrIndex, "negative group id %d at position %d", id, pos)
		}
		maxID = max(maxID, id)
	}

	switch {
	case dimSize == engine.InferDimSize:
		return int(maxID + 1), nil
	case dimSize < 0:
		return 0, errors.Wrapf(engine.ErrShape, "invalid output size %d", dimSize)
	case maxID >= int64(dimSize):
		return 0, errors.Wrapf(engine.ErrIndex, "group id %d is outside [0, %d)", maxID, dimSize)
	}
	return dimSize, nil
}

type reducer[T engine.Number] struct {
	kind engine.ReduceKind
	out  []T

	// count is only kept for mean.
	count []int64

	// seen and arg are only kept for min and max.
	seen []bool
	arg  []int64
}

func newReducer[T engine.Number](kind engine.ReduceKind, n int) *reducer[T] {
	r := &reducer[T]{kind: kind}
	if kind == engine.ReduceProduct {
		r.out = engine.Full(T(1), n).Data()
	} else {
		r.out = make([]T, n)
	}
	if kind == engine.ReduceMean {
		r.count = make([]int64, n)
	}
	if kind.HasArgIndex() {
		r.seen = make([]bool, n)
		r.arg = make([]int64, n)
	}
	return r
}

func (r *reducer[T]) combine(slot int, v T, pos int64) {
	switch r.kind {
	case engine.ReduceSum:
		r.out[slot] += v
	case engine.ReduceMean:
		r.out[slot] += v
		r.count[slot]++
	case engine.ReduceProduct:
		r.out[slot] *= v
	case engine.ReduceMin:
		if !r.seen[slot] || v < r.out[slot] {
			r.out[slot], r.arg[slot], r.seen[slot] = v, pos, true
		}
	case engine.ReduceMax:
		if !r.seen[slot] || v > r.out[slot] {
			r.out[slot], r.arg[slot], r.seen[slot] = v, pos, true
		}
	}
}

// finish divides means and marks empty min/max slots. Empty slots keep the
// value 0 and get extent as their arg index.
func (r *reducer[T]) finish(dims []int, extent int) (*engine.Reduction[T], error) {
	for i, c := range r.count {
		r.out[i] = divide(r.out[i], T(max(c, 1)))
	}
	for i, seen := range r.seen {
		if !seen {
			r.arg[i] = int64(extent)
		}
	}

	values, err := engine.New(dims, r.out)
	if err != nil {
		return nil, err
	}
	result := &engine.Reduction[T]{Values: values}
	if r.kind.HasArgIndex() {
		if result.ArgIndex, err = engine.New(dims, r.arg); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// divide is true division for floats and floor division for integers.
func divide[T engine.Number](a, b T) T {
	q := a / b
	if !isFloat[T]() && q*b != a && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func isFloat[T engine.Number]() bool {
	var one T = 1
	return one/2 != 0
}
