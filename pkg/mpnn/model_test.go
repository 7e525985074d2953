package mpnn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"k8s.io/examples/AI/graphscore/pkg/engine"
	"k8s.io/examples/AI/graphscore/pkg/engine/fallback"
)

func TestModelForward(t *testing.T) {
	m := newTestModel(t, fallback.New(), handConfig(), handModelParams(t))

	out, err := m.Forward(matrix(t, []float32{1, 0}, []float32{0, 1}))
	require.NoError(t, err)
	require.Equal(t, []int{2}, out.Dims())
	require.InDeltaSlice(t, []float32{6, 5.5}, out.Data(), 1e-6)
}

func TestModelForwardBatched(t *testing.T) {
	m := newTestModel(t, fallback.New(), handConfig(), handModelParams(t))

	x, err := engine.New([]int{3, 2, 2}, []float32{
		1, 0, 0, 1,
		0, 1, 1, 0,
		1, 0, 0, 1,
	})
	require.NoError(t, err)
	out, err := m.Infer(context.Background(), x)
	require.NoError(t, err)
	require.Equal(t, []int{3, 2}, out.Dims())
	require.InDeltaSlice(t, []float32{6, 5.5, 5.5, 6, 6, 5.5}, out.Data(), 1e-6)
}

func TestModelWideReadout(t *testing.T) {
	cfg := handConfig()
	cfg.OutDim = 2
	params := handModelParams(t)
	params["lin_pred2.weight"] = matrix(t, []float32{1, 1}, []float32{1, 0})
	params["lin_pred2.bias"] = vector(t, 0.5, 0)
	m := newTestModel(t, fallback.New(), cfg, params)

	out, err := m.Forward(matrix(t, []float32{1, 0}, []float32{0, 1}))
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, out.Dims())
	require.InDeltaSlice(t, []float32{6, 3, 5.5, 3}, out.Data(), 1e-6)
}

func TestModelIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	params := randomParams(t, cfg, DefaultGraph().EdgeDim(), 7)
	serial := newTestModel(t, fallback.New(fallback.WithParallelism(1)), cfg, params)
	parallel := newTestModel(t, fallback.New(fallback.WithParallelism(8)), cfg, params)

	x := engine.Zeros[float32](64, 2, 2)
	for i := range x.Data() {
		x.Data()[i] = float32(i%7) - 3
	}

	want, err := serial.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{64, 2}, want.Dims())
	for range 3 {
		got, err := parallel.Forward(x)
		require.NoError(t, err)
		require.Equal(t, want.Data(), got.Data())
	}
}

func TestModelMatchesPerSampleForward(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Aggregation = "max"
	m := newTestModel(t, fallback.New(), cfg, randomParams(t, cfg, DefaultGraph().EdgeDim(), 11))

	batch := [][]float32{{0.5, -1, 2, 0.25}, {-3, 1, 0, 1.5}}
	var flat []float32
	for _, sample := range batch {
		flat = append(flat, sample...)
	}
	x, err := engine.New([]int{2, 2, 2}, flat)
	require.NoError(t, err)
	batched, err := m.Forward(x)
	require.NoError(t, err)

	for b, sample := range batch {
		single, err := engine.New([]int{2, 2}, sample)
		require.NoError(t, err)
		out, err := m.Forward(single)
		require.NoError(t, err)
		require.Equal(t, out.Data(), batched.Data()[b*2:(b+1)*2])
	}
}

func TestModelForwardErrors(t *testing.T) {
	m := newTestModel(t, fallback.New(), handConfig(), handModelParams(t))

	_, err := m.Forward(vector(t, 1, 0))
	require.ErrorIs(t, err, engine.ErrShape)

	_, err = m.Forward(engine.Zeros[float32](1, 2, 2, 2))
	require.ErrorIs(t, err, engine.ErrShape)

	_, err = m.Forward(matrix(t, []float32{1, 0, 0}, []float32{0, 1, 0}))
	require.ErrorIs(t, err, engine.ErrShape)

	_, err = m.Forward(matrix(t, []float32{1, 0}))
	require.ErrorIs(t, err, engine.ErrPrecondition)
}

func TestNewModelStrictBinding(t *testing.T) {
	ctx := context.Background()
	eng := fallback.New()

	params := handModelParams(t)
	delete(params, "convs.0.mlp_upd.2.bias")
	_, err := NewModel(ctx, eng, DefaultGraph(), handConfig(), params)
	require.ErrorIs(t, err, engine.ErrPrecondition)
	require.ErrorContains(t, err, "convs.0.mlp_upd.2.bias")

	params = handModelParams(t)
	params["lin_in1.weight"] = identity(t, 3)
	_, err = NewModel(ctx, eng, DefaultGraph(), handConfig(), params)
	require.ErrorIs(t, err, engine.ErrShape)

	params = handModelParams(t)
	params["convs.1.mlp_msg.0.weight"] = identity(t, 2)
	_, err = NewModel(ctx, eng, DefaultGraph(), handConfig(), params)
	require.ErrorIs(t, err, engine.ErrPrecondition)
	require.ErrorContains(t, err, "convs.1.mlp_msg.0.weight")
}

func TestNewModelConfigErrors(t *testing.T) {
	ctx := context.Background()
	eng := fallback.New()

	cfg := handConfig()
	cfg.Aggregation = "median"
	_, err := NewModel(ctx, eng, DefaultGraph(), cfg, handModelParams(t))
	require.ErrorIs(t, err, engine.ErrConfig)

	cfg = handConfig()
	cfg.EmbDim = 0
	_, err = NewModel(ctx, eng, DefaultGraph(), cfg, handModelParams(t))
	require.ErrorIs(t, err, engine.ErrConfig)
}

func TestNewGraphErrors(t *testing.T) {
	attr := engine.Zeros[float32](2, 2)

	flat, err := engine.New([]int{4}, []int64{0, 1, 1, 0})
	require.NoError(t, err)
	_, err = NewGraph(flat, attr)
	require.ErrorIs(t, err, engine.ErrShape)

	edgeIndex, err := engine.FromRows([][]int64{{0, 1}, {1, 0}})
	require.NoError(t, err)
	_, err = NewGraph(edgeIndex, engine.Zeros[float32](3, 2))
	require.ErrorIs(t, err, engine.ErrPrecondition)

	_, err = NewGraph(edgeIndex, engine.Zeros[float32](2))
	require.ErrorIs(t, err, engine.ErrShape)

	negative, err := engine.FromRows([][]int64{{0, -1}, {1, 0}})
	require.NoError(t, err)
	_, err = NewGraph(negative, attr)
	require.ErrorIs(t, err, engine.ErrIndex)
}

func TestDefaultGraph(t *testing.T) {
	g := DefaultGraph()
	require.Equal(t, 2, g.NumNodes())
	require.Equal(t, 2, g.NumEdges())
	require.Equal(t, 2, g.EdgeDim())
	require.Equal(t, []int64{0, 1, 1, 0}, g.EdgeIndex().Data())
}

func TestLoadGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"edge_index": [[0, 1, 2], [1, 2, 0]],
		"edge_attr": [[1, 0, 0], [0, 1, 0], [0, 0, 1]]
	}`), 0o644))

	g, err := LoadGraph(path)
	require.NoError(t, err)
	require.Equal(t, 3, g.NumNodes())
	require.Equal(t, 3, g.NumEdges())
	require.Equal(t, 3, g.EdgeDim())

	_, err = LoadGraph(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
