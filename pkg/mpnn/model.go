// Package mpnn implements message-passing neural network inference over a
// fixed graph.
package mpnn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/graphscore/pkg/engine"
	"k8s.io/examples/AI/graphscore/pkg/weights"
)

// Config holds the model hyperparameters. They must match the weights.
type Config struct {
	// InDim is the width of the raw node features.
	InDim int
	// NumLayers is the number of message-passing layers.
	NumLayers int
	// EmbDim is the width of the hidden node states and messages.
	EmbDim int
	// OutDim is the width of the per-node prediction; 1 yields one scalar per node.
	OutDim int
	// Aggregation is how incoming messages are reduced: sum, mean, min, max or mul.
	Aggregation string
}

func DefaultConfig() Config {
	return Config{
		InDim:       2,
		NumLayers:   2,
		EmbDim:      4,
		OutDim:      1,
		Aggregation: "sum",
	}
}

func (c Config) validate() error {
	if c.InDim <= 0 || c.EmbDim <= 0 || c.OutDim <= 0 || c.NumLayers < 0 {
		return errors.Wrapf(engine.ErrConfig, "invalid model dimensions %+v", c)
	}
	return nil
}

// Model is an input projection, a stack of message-passing layers and a
// readout, bound to one graph and one engine.
//
// A Model is immutable once built and safe for concurrent use.
type Model struct {
	config Config
	engine engine.Engine
	graph  *Graph

	input   *MLP
	layers  []*Layer
	readout *MLP
}

// NewModel binds params onto the architecture described by cfg.
//
// Parameters use the names of the PyTorch state dict the weights were
// exported from. Loading is strict: a missing or unused parameter fails with
// engine.ErrPrecondition, a parameter of the wrong shape with engine.ErrShape.
func NewModel(ctx context.Context, eng engine.Engine, graph *Graph, cfg Config, params weights.Params) (*Model, error) {
	log := klog.FromContext(ctx)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	aggregation, err := engine.ParseReduceKind(cfg.Aggregation)
	if err != nil {
		return nil, err
	}

	b := newBinder(params)
	m := &Model{config: cfg, engine: eng, graph: graph}

	m.input, err = b.twoStage("lin_in1", "lin_in2", cfg.InDim, cfg.EmbDim, cfg.EmbDim, true)
	if err != nil {
		return nil, err
	}
	for k := range cfg.NumLayers {
		prefix := fmt.Sprintf("convs.%d", k)
		message, err := b.sequential(prefix+".mlp_msg", 2*cfg.EmbDim+graph.EdgeDim(), cfg.EmbDim, cfg.EmbDim)
		if err != nil {
			return nil, err
		}
		update, err := b.sequential(prefix+".mlp_upd", 2*cfg.EmbDim, cfg.EmbDim, cfg.EmbDim)
		if err != nil {
			return nil, err
		}
		m.layers = append(m.layers, &Layer{
			EmbDim:      cfg.EmbDim,
			Aggregation: aggregation,
			Message:     message,
			Update:      update,
		})
	}
	m.readout, err = b.twoStage("lin_pred1", "lin_pred2", cfg.EmbDim, cfg.EmbDim, cfg.OutDim, false)
	if err != nil {
		return nil, err
	}

	if unused := b.unused(); len(unused) != 0 {
		return nil, errors.Wrapf(engine.ErrPrecondition, "unexpected parameters: %s", strings.Join(unused, ", "))
	}

	log.Info("built model", "device", eng.Device(), "layers", cfg.NumLayers, "embDim", cfg.EmbDim,
		"aggregation", aggregation, "nodes", graph.NumNodes(), "edges", graph.NumEdges())
	return m, nil
}

func (m *Model) Config() Config { return m.config }
func (m *Model) Graph() *Graph  { return m.graph }

// Forward scores node features x shaped [N, InDim] or [B, N, InDim].
// The result drops the feature axis when OutDim is 1: [N] or [B, N].
func (m *Model) Forward(x *engine.Tensor[float32]) (*engine.Tensor[float32], error) {
	if x.Rank() != 2 && x.Rank() != 3 {
		return nil, errors.Wrapf(engine.ErrShape, "node features must be [nodes, features] or [batch, nodes, features], got %v", x.Dims())
	}
	if x.Dim(-1) != m.input.InDim() {
		return nil, errors.Wrapf(engine.ErrShape, "node features have width %d, model expects %d", x.Dim(-1), m.input.InDim())
	}
	if x.Dim(-2) < m.graph.NumNodes() {
		return nil, errors.Wrapf(engine.ErrPrecondition, "got %d nodes, graph references %d", x.Dim(-2), m.graph.NumNodes())
	}

	h, err := m.input.Forward(m.engine, x)
	if err != nil {
		return nil, errors.WithMessage(err, "input projection")
	}
	for k, layer := range m.layers {
		if h, err = layer.Forward(m.engine, h, m.graph); err != nil {
			return nil, errors.WithMessagef(err, "layer %d", k)
		}
	}
	out, err := m.readout.Forward(m.engine, h)
	if err != nil {
		return nil, errors.WithMessage(err, "readout")
	}
	return out.Squeeze(-1)
}

// Infer is Forward with request logging.
func (m *Model) Infer(ctx context.Context, x *engine.Tensor[float32]) (*engine.Tensor[float32], error) {
	log := klog.FromContext(ctx)

	startedAt := time.Now()
	out, err := m.Forward(x)
	if err != nil {
		return nil, err
	}
	log.V(2).Info("scored graph", "input", x.Dims(), "output", out.Dims(), "duration", time.Since(startedAt))
	return out, nil
}
