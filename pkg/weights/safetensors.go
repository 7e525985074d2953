package weights

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/x448/float16"

	"k8s.io/examples/AI/graphscore/pkg/engine"
)

// maxHeaderSize bounds the JSON header we are willing to allocate for.
const maxHeaderSize = 100 << 20

type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// ReadSafetensors decodes a safetensors file of the given size.
//
// The file is an 8-byte little-endian header length, a JSON header mapping
// tensor names to dtype, shape and byte range, then the raw little-endian
// data. F32, F64 and F16 tensors are converted to float32.
func ReadSafetensors(r io.ReaderAt, size int64) (Params, error) {
	var lenBuf [8]byte
	if _, err := r.ReadAt(lenBuf[:], 0); err != nil {
		return nil, fmt.Errorf("reading header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	if headerLen > maxHeaderSize || int64(headerLen) > size-8 {
		return nil, fmt.Errorf("invalid header length %d for file of %d bytes", headerLen, size)
	}

	headerBuf := make([]byte, headerLen)
	if _, err := r.ReadAt(headerBuf, 8); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(headerBuf, &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}

	dataStart := 8 + int64(headerLen)
	params := make(Params, len(header))
	for name, raw := range header {
		if name == "__metadata__" {
			continue
		}
		var info tensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("parsing header entry %q: %w", name, err)
		}
		begin, end := info.DataOffsets[0], info.DataOffsets[1]
		if begin < 0 || end < begin || end > size-dataStart {
			return nil, fmt.Errorf("tensor %q has invalid data offsets %v", name, info.DataOffsets)
		}
		buf := make([]byte, end-begin)
		if _, err := r.ReadAt(buf, dataStart+begin); err != nil {
			return nil, fmt.Errorf("reading tensor %q: %w", name, err)
		}
		values, err := decodeValues(info.DType, buf)
		if err != nil {
			return nil, fmt.Errorf("decoding tensor %q: %w", name, err)
		}
		t, err := engine.New(info.Shape, values)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		params[name] = t
	}
	return params, nil
}

func decodeValues(dtype string, buf []byte) ([]float32, error) {
	var width int
	switch dtype {
	case "F32":
		width = 4
	case "F64":
		width = 8
	case "F16":
		width = 2
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
	if len(buf)%width != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s values", len(buf), dtype)
	}

	values := make([]float32, len(buf)/width)
	for i := range values {
		b := buf[i*width : (i+1)*width]
		switch dtype {
		case "F32":
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case "F64":
			values[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		case "F16":
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
		}
	}
	return values, nil
}
