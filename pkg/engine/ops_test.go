package engine

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestConcatLastAxis(t *testing.T) {
	a, err := FromRows([][]float32{{1, 2}, {3, 4}})
	require.NoError(t, err)
	b, err := FromRows([][]float32{{5}, {6}})
	require.NoError(t, err)

	got, err := Concat(-1, a, b)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, got.Dims())
	require.Equal(t, []float32{1, 2, 5, 3, 4, 6}, got.Data())
}

func TestConcatFirstAxis(t *testing.T) {
	a := Full[float32](1, 1, 2)
	b := Full[float32](2, 2, 2)

	got, err := Concat(0, a, b)
	require.NoError(t, err)
	require.Equal(t, []int{3, 2}, got.Dims())
	require.Equal(t, []float32{1, 1, 2, 2, 2, 2}, got.Data())
}

func TestConcatMismatch(t *testing.T) {
	a := Zeros[float32](2, 2)
	b := Zeros[float32](3, 2)
	_, err := Concat(-1, a, b)
	require.True(t, errors.Is(err, ErrShape))

	c := Zeros[float32](2, 2, 1)
	_, err = Concat(-1, a, c)
	require.True(t, errors.Is(err, ErrShape))
}

func TestIndexSelect(t *testing.T) {
	x, err := New([]int{2, 3, 2}, []float32{
		0, 1, 2, 3, 4, 5,
		6, 7, 8, 9, 10, 11,
	})
	require.NoError(t, err)

	got, err := IndexSelect(x, 1, []int64{2, 0, 2, 1})
	require.NoError(t, err)
	require.Equal(t, []int{2, 4, 2}, got.Dims())
	require.Equal(t, []float32{
		4, 5, 0, 1, 4, 5, 2, 3,
		10, 11, 6, 7, 10, 11, 8, 9,
	}, got.Data())

	_, err = IndexSelect(x, 1, []int64{3})
	require.True(t, errors.Is(err, ErrIndex))
	_, err = IndexSelect(x, 1, []int64{-1})
	require.True(t, errors.Is(err, ErrIndex))
}

func TestTile(t *testing.T) {
	x, err := FromRows([][]float32{{0, 1}, {2, 3}})
	require.NoError(t, err)

	got := Tile(x, []int{2})
	require.Equal(t, []int{2, 2, 2}, got.Dims())
	require.Equal(t, []float32{0, 1, 2, 3, 0, 1, 2, 3}, got.Data())

	got = Tile(x, []int{2, 3})
	require.Equal(t, []int{2, 3, 2, 2}, got.Dims())
	require.Equal(t, 24, got.Size())
}

func TestParseReduceKind(t *testing.T) {
	for name, want := range map[string]ReduceKind{
		"sum": ReduceSum, "add": ReduceSum, "mean": ReduceMean,
		"min": ReduceMin, "max": ReduceMax, "mul": ReduceProduct, "product": ReduceProduct,
	} {
		got, err := ParseReduceKind(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	_, err := ParseReduceKind("median")
	require.True(t, errors.Is(err, ErrConfig))
	require.False(t, ReduceKind(42).Valid())
	require.Equal(t, "ReduceKind(42)", ReduceKind(42).String())
}

func TestParseDevice(t *testing.T) {
	d, err := ParseDevice("CPU")
	require.NoError(t, err)
	require.Equal(t, DeviceCPU, d)

	_, err = ParseDevice("tpu")
	require.True(t, errors.Is(err, ErrConfig))
}
