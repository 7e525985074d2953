package engine

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ReduceKind selects how SegmentReduce combines the elements of a group.
type ReduceKind int

const (
	ReduceSum ReduceKind = iota
	ReduceMean
	ReduceMin
	ReduceMax
	ReduceProduct
)

// InferDimSize asks SegmentReduce to size the output as max(index)+1.
const InferDimSize = -1

var reduceKindNames = map[ReduceKind]string{
	ReduceSum:     "sum",
	ReduceMean:    "mean",
	ReduceMin:     "min",
	ReduceMax:     "max",
	ReduceProduct: "mul",
}

func (k ReduceKind) String() string {
	if name, ok := reduceKindNames[k]; ok {
		return name
	}
	return "ReduceKind(" + strconv.Itoa(int(k)) + ")"
}

func (k ReduceKind) Valid() bool {
	_, ok := reduceKindNames[k]
	return ok
}

// HasArgIndex reports whether the reduction also yields the position of
// the element that won each slot.
func (k ReduceKind) HasArgIndex() bool {
	return k == ReduceMin || k == ReduceMax
}

// ParseReduceKind maps an aggregation name to its ReduceKind.
// "add" is accepted as an alias of "sum", "prod" and "product" of "mul".
func ParseReduceKind(name string) (ReduceKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sum", "add":
		return ReduceSum, nil
	case "mean":
		return ReduceMean, nil
	case "min":
		return ReduceMin, nil
	case "max":
		return ReduceMax, nil
	case "mul", "prod", "product":
		return ReduceProduct, nil
	}
	return 0, errors.Wrapf(ErrConfig, "unknown reduction %q (want sum, mean, min, max or mul)", name)
}

// Reduction is the result of a segment reduction.
type Reduction[T Number] struct {
	Values *Tensor[T]

	// ArgIndex is set for min and max only. It has the shape of Values and
	// holds, per slot, the position along the reduced axis of the element
	// that produced the extremum, or the extent of that axis if the slot
	// received no elements.
	ArgIndex *Tensor[int64]
}
