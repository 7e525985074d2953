package weights

import (
	"encoding/json"
	"fmt"
	"io"

	"k8s.io/examples/AI/graphscore/pkg/engine"
)

type jsonTensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// ReadJSON decodes parameters stored as {"name": {"shape": [...], "data": [...]}}.
func ReadJSON(r io.Reader) (Params, error) {
	var raw map[string]jsonTensor
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding json weights: %w", err)
	}
	params := make(Params, len(raw))
	for name, jt := range raw {
		t, err := engine.New(jt.Shape, jt.Data)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		params[name] = t
	}
	return params, nil
}
