package engine

import "github.com/pkg/errors"

// Errors returned by the engine and the layers built on it are wrapped around
// one of these sentinels; use errors.Is to classify them.
var (
	// ErrShape is returned when ranks or extents disagree where broadcasting,
	// concatenation or a parameter binding is attempted.
	ErrShape = errors.New("shape mismatch")

	// ErrIndex is returned when a group or edge index is outside the valid
	// range of its target axis. Indices are never clamped.
	ErrIndex = errors.New("index out of range")

	// ErrConfig is returned for an unknown reduction kind or device.
	ErrConfig = errors.New("invalid configuration")

	// ErrPrecondition is returned when construction-time invariants do not
	// hold, such as edge index and edge attributes of different lengths.
	ErrPrecondition = errors.New("precondition failed")
)

func shapeErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrShape, format, args...)
}

func indexErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrIndex, format, args...)
}
