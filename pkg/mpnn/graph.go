package mpnn

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"k8s.io/examples/AI/graphscore/pkg/engine"
)

// Graph is the fixed edge structure a model is built over. It is never
// modified after construction and is shared by every forward pass.
type Graph struct {
	edgeIndex *engine.Tensor[int64]
	edgeAttr  *engine.Tensor[float32]

	sources      []int64
	destinations *engine.Tensor[int64]
	numNodes     int
}

// NewGraph validates an edge list.
//
// edgeIndex is [2, E]: row 0 holds each edge's source node and row 1 its
// destination. edgeAttr is [E, F_e], one feature row per edge.
func NewGraph(edgeIndex *engine.Tensor[int64], edgeAttr *engine.Tensor[float32]) (*Graph, error) {
	if edgeIndex.Rank() != 2 || edgeIndex.Dim(0) != 2 {
		return nil, errors.Wrapf(engine.ErrShape, "edge index must be [2, E], got %v", edgeIndex.Dims())
	}
	if edgeAttr.Rank() != 2 {
		return nil, errors.Wrapf(engine.ErrShape, "edge attributes must be [E, F], got %v", edgeAttr.Dims())
	}
	numEdges := edgeIndex.Dim(1)
	if edgeAttr.Dim(0) != numEdges {
		return nil, errors.Wrapf(engine.ErrPrecondition, "edge index has %d edges but edge attributes have %d rows", numEdges, edgeAttr.Dim(0))
	}

	numNodes := 0
	for i, id := range edgeIndex.Data() {
		if id < 0 {
			return nil, errors.Wrapf(engine.ErrIndex, "negative node id %d in edge %d", id, i%numEdges)
		}
		numNodes = max(numNodes, int(id)+1)
	}

	destinations, err := engine.New([]int{numEdges}, edgeIndex.Data()[numEdges:])
	if err != nil {
		return nil, err
	}
	return &Graph{
		edgeIndex:    edgeIndex,
		edgeAttr:     edgeAttr,
		sources:      edgeIndex.Data()[:numEdges],
		destinations: destinations,
		numNodes:     numNodes,
	}, nil
}

// DefaultGraph is the two-node graph with one edge in each direction that
// the deployed model scores.
func DefaultGraph() *Graph {
	edgeIndex, _ := engine.FromRows([][]int64{{0, 1}, {1, 0}})
	edgeAttr, _ := engine.FromRows([][]float32{{0, 1}, {0, 1}})
	g, err := NewGraph(edgeIndex, edgeAttr)
	if err != nil {
		panic(err)
	}
	return g
}

type graphFile struct {
	EdgeIndex [][]int64   `json:"edge_index"`
	EdgeAttr  [][]float32 `json:"edge_attr"`
}

// LoadGraph reads {"edge_index": [[src...], [dst...]], "edge_attr": [[...], ...]}.
func LoadGraph(path string) (*Graph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}
	var gf graphFile
	if err := json.Unmarshal(b, &gf); err != nil {
		return nil, fmt.Errorf("parsing graph file %q: %w", path, err)
	}
	edgeIndex, err := engine.FromRows(gf.EdgeIndex)
	if err != nil {
		return nil, fmt.Errorf("edge_index in %q: %w", path, err)
	}
	edgeAttr, err := engine.FromRows(gf.EdgeAttr)
	if err != nil {
		return nil, fmt.Errorf("edge_attr in %q: %w", path, err)
	}
	return NewGraph(edgeIndex, edgeAttr)
}

func (g *Graph) NumNodes() int { return g.numNodes }
func (g *Graph) NumEdges() int { return len(g.sources) }
func (g *Graph) EdgeDim() int  { return g.edgeAttr.Dim(1) }

func (g *Graph) EdgeIndex() *engine.Tensor[int64]  { return g.edgeIndex }
func (g *Graph) EdgeAttr() *engine.Tensor[float32] { return g.edgeAttr }
