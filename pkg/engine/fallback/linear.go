package fallback

import (
	"github.com/pkg/errors"

	"k8s.io/examples/AI/graphscore/pkg/engine"
)

func (e *Engine) Linear(x, weight, bias *engine.Tensor[float32]) (*engine.Tensor[float32], error) {
	if weight.Rank() != 2 {
		return nil, errors.Wrapf(engine.ErrShape, "linear weight must be [out, in], got %v", weight.Dims())
	}
	if x.Rank() == 0 {
		return nil, errors.Wrapf(engine.ErrShape, "linear input must have a feature axis")
	}
	out, in := weight.Dim(0), weight.Dim(1)
	if x.Dim(-1) != in {
		return nil, errors.Wrapf(engine.ErrShape, "linear input %v has %d features, weight %v expects %d", x.Dims(), x.Dim(-1), weight.Dims(), in)
	}
	if bias != nil && (bias.Rank() != 1 || bias.Dim(0) != out) {
		return nil, errors.Wrapf(engine.ErrShape, "linear bias %v does not match %d outputs", bias.Dims(), out)
	}

	dims := x.Dims()
	dims[len(dims)-1] = out
	rows := engine.NumElements(dims[:len(dims)-1])
	xs, ws := x.Data(), weight.Data()
	ys := make([]float32, rows*out)
	parallelFor(rows, e.parallelism, func(start, end int) {
		for r := start; r < end; r++ {
			row := xs[r*in : (r+1)*in]
			for o := range out {
				w := ws[o*in : (o+1)*in]
				var sum float32
				if bias != nil {
					sum = bias.Data()[o]
				}
				for k, v := range row {
					sum += v * w[k]
				}
				ys[r*out+o] = sum
			}
		}
	})
	return engine.New(dims, ys)
}

func (e *Engine) ReLU(x *engine.Tensor[float32]) (*engine.Tensor[float32], error) {
	src := x.Data()
	ys := make([]float32, len(src))
	for i, v := range src {
		ys[i] = max(v, 0)
	}
	return engine.New(x.Dims(), ys)
}
