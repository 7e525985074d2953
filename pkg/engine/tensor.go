package engine

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/constraints"
)

// Number is the set of element types a Tensor can hold.
type Number interface {
	constraints.Integer | constraints.Float
}

// Tensor is a dense, row-major buffer.
//
// Tensors are treated as values: operations return new tensors and never
// modify their inputs, so a tensor can be shared read-only between goroutines.
type Tensor[T Number] struct {
	dims []int
	data []T
}

// New returns a tensor with the given dimensions backed by data.
// The tensor takes ownership of data.
func New[T Number](dims []int, data []T) (*Tensor[T], error) {
	for _, d := range dims {
		if d < 0 {
			return nil, shapeErrorf("negative dimension in %v", dims)
		}
	}
	if n := NumElements(dims); n != len(data) {
		return nil, shapeErrorf("dimensions %v need %d values, got %d", dims, n, len(data))
	}
	return &Tensor[T]{dims: slices.Clone(dims), data: data}, nil
}

// Zeros returns a tensor filled with zeros.
func Zeros[T Number](dims ...int) *Tensor[T] {
	return &Tensor[T]{dims: slices.Clone(dims), data: make([]T, NumElements(dims))}
}

// Full returns a tensor with every element set to value.
func Full[T Number](value T, dims ...int) *Tensor[T] {
	t := Zeros[T](dims...)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromRows builds a rank-2 tensor from equally sized rows.
func FromRows[T Number](rows [][]T) (*Tensor[T], error) {
	if len(rows) == 0 {
		return Zeros[T](0, 0), nil
	}
	width := len(rows[0])
	data := make([]T, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, shapeErrorf("row %d has %d values, row 0 has %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return &Tensor[T]{dims: []int{len(rows), width}, data: data}, nil
}

func (t *Tensor[T]) Dims() []int {
	return slices.Clone(t.dims)
}

// Dim returns the extent of axis, which may be negative to count from the end.
// It panics if the axis is out of range.
func (t *Tensor[T]) Dim(axis int) int {
	if axis < 0 {
		axis += len(t.dims)
	}
	return t.dims[axis]
}

func (t *Tensor[T]) Rank() int {
	return len(t.dims)
}

func (t *Tensor[T]) Size() int {
	return len(t.data)
}

// Data returns the underlying buffer. Callers must not modify it.
func (t *Tensor[T]) Data() []T {
	return t.data
}

// Reshape returns a tensor sharing t's data with new dimensions.
func (t *Tensor[T]) Reshape(dims ...int) (*Tensor[T], error) {
	if NumElements(dims) != len(t.data) {
		return nil, shapeErrorf("cannot reshape %v into %v", t.dims, dims)
	}
	return &Tensor[T]{dims: slices.Clone(dims), data: t.data}, nil
}

// Squeeze drops axis if its extent is 1, and returns t unchanged otherwise.
func (t *Tensor[T]) Squeeze(axis int) (*Tensor[T], error) {
	axis, err := NormalizeAxis(axis, len(t.dims))
	if err != nil {
		return nil, err
	}
	if t.dims[axis] != 1 {
		return t, nil
	}
	return t.Reshape(slices.Delete(slices.Clone(t.dims), axis, axis+1)...)
}

func (t *Tensor[T]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%v", t.dims)
	const maxValues = 16
	if len(t.data) <= maxValues {
		fmt.Fprintf(&sb, "%v", t.data)
	} else {
		fmt.Fprintf(&sb, "%v...", t.data[:maxValues])
	}
	return sb.String()
}

// NormalizeAxis resolves a possibly negative axis against rank.
func NormalizeAxis(axis, rank int) (int, error) {
	resolved := axis
	if resolved < 0 {
		resolved += rank
	}
	if resolved < 0 || resolved >= rank {
		return 0, shapeErrorf("axis %d out of range for rank %d", axis, rank)
	}
	return resolved, nil
}

// NumElements is the product of dims (1 for a scalar).
func NumElements(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// Strides returns the row-major strides of dims.
func Strides(dims []int) []int {
	strides := make([]int, len(dims))
	stride := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= dims[i]
	}
	return strides
}
