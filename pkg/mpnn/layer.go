package mpnn

import (
	"github.com/pkg/errors"

	"k8s.io/examples/AI/graphscore/pkg/engine"
)

// Layer is one round of message passing.
//
// For every edge j→i it computes a message from [h_i, h_j, e_ij] with the
// Message MLP, reduces the messages arriving at each node with Aggregation,
// and computes the node's next state from [h_i, aggregate_i] with the
// Update MLP.
type Layer struct {
	EmbDim      int
	Aggregation engine.ReduceKind

	Message *MLP
	Update  *MLP
}

// Forward runs the layer on node states h shaped [..., N, EmbDim]; any
// leading axes are batch axes that share the graph.
func (l *Layer) Forward(eng engine.Engine, h *engine.Tensor[float32], g *Graph) (*engine.Tensor[float32], error) {
	if h.Rank() < 2 {
		return nil, errors.Wrapf(engine.ErrShape, "node states must be [..., nodes, features], got %v", h.Dims())
	}
	if h.Dim(-1) != l.Update.OutDim() {
		return nil, errors.Wrapf(engine.ErrShape, "node states have width %d, layer produces %d", h.Dim(-1), l.Update.OutDim())
	}
	messages, err := l.message(eng, h, g)
	if err != nil {
		return nil, errors.WithMessage(err, "message")
	}
	aggregated, err := l.aggregate(eng, messages, g, h.Dim(-2))
	if err != nil {
		return nil, errors.WithMessage(err, "aggregate")
	}
	out, err := l.update(eng, h, aggregated)
	if err != nil {
		return nil, errors.WithMessage(err, "update")
	}
	return out, nil
}

// message returns one row per edge: [..., E, EmbDim].
func (l *Layer) message(eng engine.Engine, h *engine.Tensor[float32], g *Graph) (*engine.Tensor[float32], error) {
	nodeAxis := h.Rank() - 2
	hi, err := engine.IndexSelect(h, nodeAxis, g.destinations.Data())
	if err != nil {
		return nil, err
	}
	hj, err := engine.IndexSelect(h, nodeAxis, g.sources)
	if err != nil {
		return nil, err
	}
	edgeAttr := g.edgeAttr
	if nodeAxis > 0 {
		edgeAttr = engine.Tile(edgeAttr, h.Dims()[:nodeAxis])
	}
	in, err := engine.Concat(-1, hi, hj, edgeAttr)
	if err != nil {
		return nil, err
	}
	return l.Message.Forward(eng, in)
}

// aggregate reduces messages into their destination nodes: [..., N, EmbDim].
func (l *Layer) aggregate(eng engine.Engine, messages *engine.Tensor[float32], g *Graph, numNodes int) (*engine.Tensor[float32], error) {
	reduced, err := eng.SegmentReduce(messages, g.destinations, -2, l.Aggregation, numNodes)
	if err != nil {
		return nil, err
	}
	return reduced.Values, nil
}

func (l *Layer) update(eng engine.Engine, h, aggregated *engine.Tensor[float32]) (*engine.Tensor[float32], error) {
	in, err := engine.Concat(-1, h, aggregated)
	if err != nil {
		return nil, err
	}
	return l.Update.Forward(eng, in)
}
