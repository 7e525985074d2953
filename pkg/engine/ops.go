package engine

import "slices"

// Concat joins tensors along axis. All other extents must agree.
func Concat[T Number](axis int, tensors ...*Tensor[T]) (*Tensor[T], error) {
	if len(tensors) == 0 {
		return nil, shapeErrorf("concat of zero tensors")
	}
	first := tensors[0]
	axis, err := NormalizeAxis(axis, first.Rank())
	if err != nil {
		return nil, err
	}

	dims := first.Dims()
	dims[axis] = 0
	for i, t := range tensors {
		if t.Rank() != first.Rank() {
			return nil, shapeErrorf("concat operand %d has rank %d, want %d", i, t.Rank(), first.Rank())
		}
		for a := range t.dims {
			if a != axis && t.dims[a] != first.dims[a] {
				return nil, shapeErrorf("concat operand %d has dimensions %v, incompatible with %v on axis %d", i, t.dims, first.dims, a)
			}
		}
		dims[axis] += t.dims[axis]
	}

	outer := NumElements(dims[:axis])
	out := make([]T, 0, NumElements(dims))
	for o := range outer {
		for _, t := range tensors {
			chunk := NumElements(t.dims[axis:])
			out = append(out, t.data[o*chunk:(o+1)*chunk]...)
		}
	}
	return &Tensor[T]{dims: dims, data: out}, nil
}

// IndexSelect gathers the slices of t at the given positions along axis.
// The result has len(index) entries along axis.
func IndexSelect[T Number](t *Tensor[T], axis int, index []int64) (*Tensor[T], error) {
	axis, err := NormalizeAxis(axis, t.Rank())
	if err != nil {
		return nil, err
	}
	extent := t.dims[axis]
	for i, id := range index {
		if id < 0 || id >= int64(extent) {
			return nil, indexErrorf("index %d at position %d is outside [0, %d) on axis %d", id, i, extent, axis)
		}
	}

	dims := t.Dims()
	dims[axis] = len(index)
	outer := NumElements(t.dims[:axis])
	inner := NumElements(t.dims[axis+1:])
	out := make([]T, 0, NumElements(dims))
	for o := range outer {
		block := t.data[o*extent*inner : (o+1)*extent*inner]
		for _, id := range index {
			out = append(out, block[int(id)*inner:(int(id)+1)*inner]...)
		}
	}
	return &Tensor[T]{dims: dims, data: out}, nil
}

// Tile replicates t across new leading axes with the given extents.
func Tile[T Number](t *Tensor[T], leading []int) *Tensor[T] {
	dims := append(slices.Clone(leading), t.dims...)
	copies := NumElements(leading)
	out := make([]T, 0, copies*len(t.data))
	for range copies {
		out = append(out, t.data...)
	}
	return &Tensor[T]{dims: dims, data: out}
}
