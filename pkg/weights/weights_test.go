package weights

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

type testTensor struct {
	dtype string
	shape []int
	data  []byte
}

func f32Bytes(values ...float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func f64Bytes(values ...float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func f16Bytes(values ...float32) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
	}
	return buf
}

// encodeSafetensors lays out tensors in map order after a JSON header.
func encodeSafetensors(t *testing.T, tensors map[string]testTensor) []byte {
	t.Helper()
	header := map[string]any{"__metadata__": map[string]string{"format": "pt"}}
	var data bytes.Buffer
	for name, tt := range tensors {
		begin := data.Len()
		data.Write(tt.data)
		header[name] = map[string]any{
			"dtype":        tt.dtype,
			"shape":        tt.shape,
			"data_offsets": []int{begin, data.Len()},
		}
	}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, binary.Write(&out, binary.LittleEndian, uint64(len(headerJSON))))
	out.Write(headerJSON)
	out.Write(data.Bytes())
	return out.Bytes()
}

func TestReadSafetensors(t *testing.T) {
	raw := encodeSafetensors(t, map[string]testTensor{
		"lin_in1.weight": {dtype: "F32", shape: []int{2, 2}, data: f32Bytes(1, 2, 3, 4)},
		"lin_in1.bias":   {dtype: "F64", shape: []int{2}, data: f64Bytes(0.5, -0.25)},
		"lin_in2.weight": {dtype: "F16", shape: []int{1, 2}, data: f16Bytes(1.5, -2)},
	})

	params, err := ReadSafetensors(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Equal(t, []string{"lin_in1.bias", "lin_in1.weight", "lin_in2.weight"}, params.Names())
	require.Equal(t, 8, params.NumValues())

	require.Equal(t, []int{2, 2}, params["lin_in1.weight"].Dims())
	require.Equal(t, []float32{1, 2, 3, 4}, params["lin_in1.weight"].Data())
	require.Equal(t, []float32{0.5, -0.25}, params["lin_in1.bias"].Data())
	require.Equal(t, []float32{1.5, -2}, params["lin_in2.weight"].Data())
}

func TestReadSafetensorsErrors(t *testing.T) {
	raw := encodeSafetensors(t, map[string]testTensor{
		"x": {dtype: "I64", shape: []int{1}, data: make([]byte, 8)},
	})
	_, err := ReadSafetensors(bytes.NewReader(raw), int64(len(raw)))
	require.ErrorContains(t, err, "unsupported dtype")

	raw = encodeSafetensors(t, map[string]testTensor{
		"x": {dtype: "F32", shape: []int{3}, data: f32Bytes(1, 2)},
	})
	_, err = ReadSafetensors(bytes.NewReader(raw), int64(len(raw)))
	require.ErrorContains(t, err, "tensor \"x\"")

	header := []byte(`{"x":{"dtype":"F32","shape":[1],"data_offsets":[0,9223372036854775800]}}`)
	var huge bytes.Buffer
	require.NoError(t, binary.Write(&huge, binary.LittleEndian, uint64(len(header))))
	huge.Write(header)
	huge.Write(f32Bytes(1))
	_, err = ReadSafetensors(bytes.NewReader(huge.Bytes()), int64(huge.Len()))
	require.ErrorContains(t, err, "invalid data offsets")

	truncated := make([]byte, 8)
	binary.LittleEndian.PutUint64(truncated, 1000)
	_, err = ReadSafetensors(bytes.NewReader(truncated), int64(len(truncated)))
	require.ErrorContains(t, err, "invalid header length")
}

func TestReadJSON(t *testing.T) {
	params, err := ReadJSON(bytes.NewBufferString(`{
		"lin_pred2.weight": {"shape": [1, 2], "data": [1, 1]},
		"lin_pred2.bias": {"shape": [1], "data": [0.5]}
	}`))
	require.NoError(t, err)
	require.Equal(t, []string{"lin_pred2.bias", "lin_pred2.weight"}, params.Names())
	require.Equal(t, []float32{0.5}, params["lin_pred2.bias"].Data())

	_, err = ReadJSON(bytes.NewBufferString(`{"w": {"shape": [2, 2], "data": [1]}}`))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st := filepath.Join(dir, "model.safetensors")
	require.NoError(t, os.WriteFile(st, encodeSafetensors(t, map[string]testTensor{
		"w": {dtype: "F32", shape: []int{1}, data: f32Bytes(7)},
	}), 0o644))
	params, err := LoadFile(ctx, st)
	require.NoError(t, err)
	require.Equal(t, []float32{7}, params["w"].Data())

	js := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"w": {"shape": [1], "data": [8]}}`), 0o644))
	params, err = LoadFile(ctx, js)
	require.NoError(t, err)
	require.Equal(t, []float32{8}, params["w"].Data())

	_, err = LoadFile(ctx, filepath.Join(dir, "model.pth"))
	require.Error(t, err)

	pth := filepath.Join(dir, "other.pth")
	require.NoError(t, os.WriteFile(pth, []byte("pickle"), 0o644))
	_, err = LoadFile(ctx, pth)
	require.ErrorContains(t, err, "unknown weights format")
}
