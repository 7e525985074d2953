// Package serving exposes a Predictor over HTTP and gRPC.
package serving

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/pkg/errors"

	"k8s.io/examples/AI/graphscore/pkg/engine"
)

const ContentTypeJSON = "application/json"

var (
	// ErrUnsupportedMediaType is returned for request bodies that are not JSON.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrNotAcceptable is returned when the caller cannot accept JSON.
	ErrNotAcceptable = errors.New("not acceptable")
	// ErrMalformedRequest is returned for bodies that do not parse.
	ErrMalformedRequest = errors.New("malformed request")
)

type request struct {
	Inputs any `json:"inputs"`
}

// DecodeRequest parses {"inputs": [[...], ...]} into node features shaped
// [nodes, features] or [batch, nodes, features].
func DecodeRequest(contentType string, body io.Reader) (*engine.Tensor[float32], error) {
	if !isJSON(contentType) {
		return nil, errors.Wrapf(ErrUnsupportedMediaType, "content type %q", contentType)
	}
	var req request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if req.Inputs == nil {
		return nil, errors.Wrap(ErrMalformedRequest, `missing "inputs"`)
	}
	return decodeInputs(req.Inputs)
}

// EncodeResponse writes t as a nested JSON array.
func EncodeResponse(accept string, w io.Writer, t *engine.Tensor[float32]) error {
	if !AcceptsJSON(accept) {
		return errors.Wrapf(ErrNotAcceptable, "accept %q", accept)
	}
	return json.NewEncoder(w).Encode(nested(t))
}

// AcceptsJSON reports whether an Accept header admits a JSON response. An
// empty header accepts anything.
func AcceptsJSON(accept string) bool {
	if strings.TrimSpace(accept) == "" {
		return true
	}
	for _, mediaRange := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(mediaRange)
		if err != nil || params["q"] == "0" {
			continue
		}
		switch mediaType {
		case ContentTypeJSON, "application/*", "*/*":
			return true
		}
	}
	return false
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == ContentTypeJSON
}

// decodeInputs converts a JSON-shaped value ([]any nesting with float64
// leaves) into a rank 2 or rank 3 tensor.
func decodeInputs(v any) (*engine.Tensor[float32], error) {
	var dims []int
	for cur := v; ; {
		list, ok := cur.([]any)
		if !ok {
			break
		}
		dims = append(dims, len(list))
		if len(list) == 0 {
			break
		}
		cur = list[0]
	}
	if len(dims) != 2 && len(dims) != 3 {
		return nil, errors.Wrapf(engine.ErrShape, "inputs must be a 2 or 3 level nested array, got %d levels", len(dims))
	}

	data := make([]float32, 0, engine.NumElements(dims))
	var walk func(v any, depth int) error
	walk = func(v any, depth int) error {
		if depth == len(dims) {
			f, ok := v.(float64)
			if !ok {
				return errors.Wrapf(engine.ErrShape, "inputs must hold numbers, got %T", v)
			}
			data = append(data, float32(f))
			return nil
		}
		list, ok := v.([]any)
		if !ok || len(list) != dims[depth] {
			return errors.Wrapf(engine.ErrShape, "inputs are ragged at depth %d", depth)
		}
		for _, item := range list {
			if err := walk(item, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(v, 0); err != nil {
		return nil, err
	}
	return engine.New(dims, data)
}

// nested converts t into []any nesting with float32 leaves.
func nested(t *engine.Tensor[float32]) any {
	dims := t.Dims()
	data := t.Data()
	if len(dims) == 0 {
		return data[0]
	}
	var build func(depth, offset int) []any
	strides := engine.Strides(dims)
	build = func(depth, offset int) []any {
		out := make([]any, dims[depth])
		for i := range out {
			at := offset + i*strides[depth]
			if depth == len(dims)-1 {
				out[i] = data[at]
			} else {
				out[i] = build(depth+1, at)
			}
		}
		return out
	}
	return build(0, 0)
}
