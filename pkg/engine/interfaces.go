package engine

import (
	"strings"

	"github.com/pkg/errors"
)

// Device identifies where an Engine keeps its buffers.
type Device string

const (
	DeviceCPU Device = "cpu"
)

// ParseDevice validates a device name.
func ParseDevice(name string) (Device, error) {
	switch Device(strings.ToLower(name)) {
	case DeviceCPU:
		return DeviceCPU, nil
	}
	return "", errors.Wrapf(ErrConfig, "unsupported device %q", name)
}

// Engine runs the numeric kernels of a model on one device.
//
// Implementations must be safe for concurrent use: a model is shared by all
// in-flight requests, and kernels only read their inputs.
type Engine interface {
	Device() Device

	// Linear computes x·weightᵀ + bias over the last axis of x.
	// weight is [out, in]; bias is [out] or nil.
	Linear(x, weight, bias *Tensor[float32]) (*Tensor[float32], error)

	// ReLU applies max(x, 0) elementwise.
	ReLU(x *Tensor[float32]) (*Tensor[float32], error)

	// SegmentReduce combines the elements of values that share a group id in
	// index along dim. dimSize is the output extent at dim, or InferDimSize.
	SegmentReduce(values *Tensor[float32], index *Tensor[int64], dim int, kind ReduceKind, dimSize int) (*Reduction[float32], error)
}
