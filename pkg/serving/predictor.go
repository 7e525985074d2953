package serving

import (
	"context"

	"github.com/pkg/errors"

	"k8s.io/examples/AI/graphscore/pkg/engine"
	"k8s.io/examples/AI/graphscore/pkg/mpnn"
)

// Predictor scores a batch of node features.
type Predictor interface {
	Infer(ctx context.Context, x *engine.Tensor[float32]) (*engine.Tensor[float32], error)
}

var _ Predictor = (*mpnn.Model)(nil)

// isClientError reports whether err was caused by the request rather than
// the server.
func isClientError(err error) bool {
	for _, target := range []error{ErrMalformedRequest, engine.ErrShape, engine.ErrIndex, engine.ErrPrecondition} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
