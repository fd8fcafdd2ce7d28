package mps

import (
	"fmt"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// Ground is the ground state of an open XY chain.
type Ground struct {
	L       int     `json:"L"`
	BondDim int     `json:"bond_dim"`
	Energy  float64 `json:"energy"`
	// OrderParameter is (<Mx^2> + <My^2>) / L^2.
	OrderParameter float64 `json:"order_parameter"`
}

// Workspace holds the buffers of a chain of fixed length.
type Workspace struct {
	fs   []*tensor.Dense
	bufs [10]*tensor.Dense
}

// NewWorkspace returns buffers for a chain of length l.
func NewWorkspace(l int) *Workspace {
	w := &Workspace{fs: make([]*tensor.Dense, 0, l)}
	for range l {
		w.fs = append(w.fs, tensor.Zeros(1))
	}
	for i := range w.bufs {
		w.bufs[i] = tensor.Zeros(1)
	}
	return w
}

func (w *Workspace) bufs2() [2]*tensor.Dense {
	return [2]*tensor.Dense(w.bufs[:2])
}

// Expectation returns <ms|mpo|ms> / <ms|ms>.
func (w *Workspace) Expectation(mpo, ms []*tensor.Dense) complex64 {
	return LExpressions(w.fs, mpo, ms, w.bufs2()) / InnerProduct(ms, ms, w.bufs2())
}

// Expectation2 returns <ms|mpo mpo|ms> / <ms|ms>.
func (w *Workspace) Expectation2(mpo, ms []*tensor.Dense) complex64 {
	return H2(mpo, ms, w.bufs2()) / InnerProduct(ms, ms, w.bufs2())
}

// GroundState searches the ground state of the XY chain j Σ (XX + YY) with j = -1.
func GroundState(l, bondDim int, opt SearchOptions) (Ground, error) {
	h, err := XYChain(l, -1)
	if err != nil {
		return Ground{}, errors.Wrap(err, "")
	}
	mx, err := MagnetizationX(l)
	if err != nil {
		return Ground{}, errors.Wrap(err, "")
	}
	my, err := MagnetizationY(l)
	if err != nil {
		return Ground{}, errors.Wrap(err, "")
	}

	w := NewWorkspace(l)
	state := RandMPS(h, bondDim)
	if err := SearchGroundState(w.fs, h, state, w.bufs, opt); err != nil {
		return Ground{}, errors.Wrap(err, fmt.Sprintf("l %d bondDim %d", l, bondDim))
	}

	g := Ground{L: l, BondDim: bondDim}
	g.Energy = float64(real(w.Expectation(h, state)))
	m2 := w.Expectation2(mx, state) + w.Expectation2(my, state)
	g.OrderParameter = float64(real(m2)) / float64(l*l)
	return g, nil
}
