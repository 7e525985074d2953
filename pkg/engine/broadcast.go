package engine

import "slices"

// View is a read-only, possibly broadcast, window onto a tensor's data.
// Axes that were expanded by Broadcast have stride 0.
type View[T Number] struct {
	dims    []int
	strides []int
	data    []T
}

// Broadcast expands src to the dimensions of other, placing src's axis at dim.
//
// A rank-1 src gets dim leading singleton axes; singleton axes are then
// appended until the ranks match, and every singleton axis is logically
// repeated to the target extent. No data is copied.
//
// A negative dim counts from the end of other. Any axis whose extent is
// neither 1 nor the target extent is a shape error.
func Broadcast[T Number](src *Tensor[T], other []int, dim int) (*View[T], error) {
	axis, err := NormalizeAxis(dim, len(other))
	if err != nil {
		return nil, err
	}

	dims := slices.Clone(src.dims)
	strides := Strides(src.dims)
	if len(dims) == 1 {
		for range axis {
			dims = slices.Insert(dims, 0, 1)
			strides = slices.Insert(strides, 0, 0)
		}
	}
	if len(dims) > len(other) {
		return nil, shapeErrorf("cannot broadcast %v to lower rank %v", src.dims, other)
	}
	for len(dims) < len(other) {
		dims = append(dims, 1)
		strides = append(strides, 0)
	}

	for i, want := range other {
		switch dims[i] {
		case want:
		case 1:
			dims[i] = want
			strides[i] = 0
		default:
			return nil, shapeErrorf("cannot broadcast %v to %v along axis %d: axis %d has extent %d, want 1 or %d",
				src.dims, other, dim, i, dims[i], want)
		}
	}

	return &View[T]{dims: dims, strides: strides, data: src.data}, nil
}

func (v *View[T]) Dims() []int {
	return slices.Clone(v.dims)
}

func (v *View[T]) offset(coords []int) int {
	off := 0
	for i, c := range coords {
		off += c * v.strides[i]
	}
	return off
}

// Materialize copies the view into a new contiguous tensor.
func (v *View[T]) Materialize() *Tensor[T] {
	out := Zeros[T](v.dims...)
	coords := make([]int, len(v.dims))
	for i := range out.data {
		out.data[i] = v.data[v.offset(coords)]
		increment(coords, v.dims)
	}
	return out
}

// Lane describes the elements of a view that share every coordinate except
// one axis: element d of the lane lives at Base + d*Stride.
type Lane struct {
	Base   int
	Stride int
}

// Lane returns the lane through the view at the given outer and inner
// positions around axis. outer enumerates the axes before axis and inner the
// axes after it, both in row-major order.
func (v *View[T]) Lane(axis, outer, inner int) Lane {
	base := 0
	for i := len(v.dims) - 1; i > axis; i-- {
		base += (inner % v.dims[i]) * v.strides[i]
		inner /= v.dims[i]
	}
	for i := axis - 1; i >= 0; i-- {
		base += (outer % v.dims[i]) * v.strides[i]
		outer /= v.dims[i]
	}
	return Lane{Base: base, Stride: v.strides[axis]}
}

// ValueAt returns the element at a raw data offset, as produced by Lane.
func (v *View[T]) ValueAt(offset int) T {
	return v.data[offset]
}

// increment advances row-major coordinates by one.
func increment(coords, dims []int) {
	for i := len(coords) - 1; i >= 0; i-- {
		coords[i]++
		if coords[i] < dims[i] {
			return
		}
		coords[i] = 0
	}
}
