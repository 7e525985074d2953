package mpnn

import (
	"github.com/pkg/errors"

	"k8s.io/examples/AI/graphscore/pkg/engine"
	"k8s.io/examples/AI/graphscore/pkg/weights"
)

// Linear is a frozen affine map with torch nn.Linear layout: Weight is
// [out, in] and Bias is [out].
type Linear struct {
	Name   string
	Weight *engine.Tensor[float32]
	Bias   *engine.Tensor[float32]
}

func (l *Linear) InDim() int  { return l.Weight.Dim(1) }
func (l *Linear) OutDim() int { return l.Weight.Dim(0) }

// Stage is one linear map, optionally followed by a ReLU.
type Stage struct {
	Linear *Linear
	ReLU   bool
}

// MLP is an ordered sequence of stages.
type MLP struct {
	Stages []Stage
}

func (m *MLP) InDim() int  { return m.Stages[0].Linear.InDim() }
func (m *MLP) OutDim() int { return m.Stages[len(m.Stages)-1].Linear.OutDim() }

func (m *MLP) Forward(eng engine.Engine, x *engine.Tensor[float32]) (*engine.Tensor[float32], error) {
	h := x
	for _, stage := range m.Stages {
		var err error
		h, err = eng.Linear(h, stage.Linear.Weight, stage.Linear.Bias)
		if err != nil {
			return nil, errors.WithMessage(err, stage.Linear.Name)
		}
		if stage.ReLU {
			if h, err = eng.ReLU(h); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// binder takes parameters out of a state dict by name, checking shapes, and
// remembers which names were used so leftovers can be reported.
type binder struct {
	params weights.Params
	used   map[string]bool
}

func newBinder(params weights.Params) *binder {
	return &binder{params: params, used: make(map[string]bool)}
}

func (b *binder) tensor(name string, dims ...int) (*engine.Tensor[float32], error) {
	t, ok := b.params[name]
	if !ok {
		return nil, errors.Wrapf(engine.ErrPrecondition, "missing parameter %q", name)
	}
	got := t.Dims()
	if len(got) != len(dims) {
		return nil, errors.Wrapf(engine.ErrShape, "parameter %q has shape %v, want %v", name, got, dims)
	}
	for i := range dims {
		if got[i] != dims[i] {
			return nil, errors.Wrapf(engine.ErrShape, "parameter %q has shape %v, want %v", name, got, dims)
		}
	}
	b.used[name] = true
	return t, nil
}

func (b *binder) linear(name string, in, out int) (*Linear, error) {
	weight, err := b.tensor(name+".weight", out, in)
	if err != nil {
		return nil, err
	}
	bias, err := b.tensor(name+".bias", out)
	if err != nil {
		return nil, err
	}
	return &Linear{Name: name, Weight: weight, Bias: bias}, nil
}

// twoStage binds linear maps first (in→hidden, ReLU) and second (hidden→out).
func (b *binder) twoStage(first, second string, in, hidden, out int, finalReLU bool) (*MLP, error) {
	l1, err := b.linear(first, in, hidden)
	if err != nil {
		return nil, err
	}
	l2, err := b.linear(second, hidden, out)
	if err != nil {
		return nil, err
	}
	return &MLP{Stages: []Stage{{Linear: l1, ReLU: true}, {Linear: l2, ReLU: finalReLU}}}, nil
}

// sequential binds a torch Sequential(Linear, ReLU, Linear, ReLU), whose
// linear maps are entries 0 and 2.
func (b *binder) sequential(prefix string, in, hidden, out int) (*MLP, error) {
	return b.twoStage(prefix+".0", prefix+".2", in, hidden, out, true)
}

// unused returns the names that were never bound.
func (b *binder) unused() []string {
	var names []string
	for _, name := range b.params.Names() {
		if !b.used[name] {
			names = append(names, name)
		}
	}
	return names
}
