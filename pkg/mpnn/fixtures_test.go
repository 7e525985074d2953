package mpnn

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"k8s.io/examples/AI/graphscore/pkg/engine"
	"k8s.io/examples/AI/graphscore/pkg/weights"
)

func matrix(t *testing.T, rows ...[]float32) *engine.Tensor[float32] {
	t.Helper()
	m, err := engine.FromRows(rows)
	require.NoError(t, err)
	return m
}

func vector(t *testing.T, values ...float32) *engine.Tensor[float32] {
	t.Helper()
	v, err := engine.New([]int{len(values)}, values)
	require.NoError(t, err)
	return v
}

func identity(t *testing.T, n int) *engine.Tensor[float32] {
	t.Helper()
	m := engine.Zeros[float32](n, n)
	for i := range n {
		m.Data()[i*n+i] = 1
	}
	return m
}

// handLayerParams are the weights of the worked two-node example:
//
//	message: row 0 picks h_i[0]; row 1 is h_j[0] + e[1]; then identity.
//	update:  [sum(h, aggr), h[0]-h[1]-aggr[1]+0.5], ReLU, then [a, a+b-1].
func handLayerParams(t *testing.T, prefix string) weights.Params {
	return weights.Params{
		prefix + ".mlp_msg.0.weight": matrix(t, []float32{1, 0, 0, 0, 0, 0}, []float32{0, 0, 1, 0, 0, 1}),
		prefix + ".mlp_msg.0.bias":   vector(t, 0, 0),
		prefix + ".mlp_msg.2.weight": identity(t, 2),
		prefix + ".mlp_msg.2.bias":   vector(t, 0, 0),
		prefix + ".mlp_upd.0.weight": matrix(t, []float32{1, 1, 1, 1}, []float32{1, -1, 0, -1}),
		prefix + ".mlp_upd.0.bias":   vector(t, 0, 0.5),
		prefix + ".mlp_upd.2.weight": matrix(t, []float32{1, 0}, []float32{1, 1}),
		prefix + ".mlp_upd.2.bias":   vector(t, 0, -1),
	}
}

// handModelParams wraps the worked layer with identity projections and a
// readout that sums both features and adds 0.5.
func handModelParams(t *testing.T) weights.Params {
	params := handLayerParams(t, "convs.0")
	params["lin_in1.weight"] = identity(t, 2)
	params["lin_in1.bias"] = vector(t, 0, 0)
	params["lin_in2.weight"] = identity(t, 2)
	params["lin_in2.bias"] = vector(t, 0, 0)
	params["lin_pred1.weight"] = identity(t, 2)
	params["lin_pred1.bias"] = vector(t, 0, 0)
	params["lin_pred2.weight"] = matrix(t, []float32{1, 1})
	params["lin_pred2.bias"] = vector(t, 0.5)
	return params
}

func handConfig() Config {
	return Config{InDim: 2, NumLayers: 1, EmbDim: 2, OutDim: 1, Aggregation: "sum"}
}

// randomParams returns a full parameter set for cfg with values in [-1, 1).
func randomParams(t *testing.T, cfg Config, edgeDim int, seed uint64) weights.Params {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	params := weights.Params{}
	add := func(name string, in, out int) {
		w := engine.Zeros[float32](out, in)
		for i := range w.Data() {
			w.Data()[i] = rng.Float32()*2 - 1
		}
		b := engine.Zeros[float32](out)
		for i := range b.Data() {
			b.Data()[i] = rng.Float32()*2 - 1
		}
		params[name+".weight"] = w
		params[name+".bias"] = b
	}
	add("lin_in1", cfg.InDim, cfg.EmbDim)
	add("lin_in2", cfg.EmbDim, cfg.EmbDim)
	for k := range cfg.NumLayers {
		add(fmt.Sprintf("convs.%d.mlp_msg.0", k), 2*cfg.EmbDim+edgeDim, cfg.EmbDim)
		add(fmt.Sprintf("convs.%d.mlp_msg.2", k), cfg.EmbDim, cfg.EmbDim)
		add(fmt.Sprintf("convs.%d.mlp_upd.0", k), 2*cfg.EmbDim, cfg.EmbDim)
		add(fmt.Sprintf("convs.%d.mlp_upd.2", k), cfg.EmbDim, cfg.EmbDim)
	}
	add("lin_pred1", cfg.EmbDim, cfg.EmbDim)
	add("lin_pred2", cfg.EmbDim, cfg.OutDim)
	return params
}

func newTestModel(t *testing.T, eng engine.Engine, cfg Config, params weights.Params) *Model {
	t.Helper()
	m, err := NewModel(context.Background(), eng, DefaultGraph(), cfg, params)
	require.NoError(t, err)
	return m
}
