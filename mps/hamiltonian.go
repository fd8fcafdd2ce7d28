package mps

import (
	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

var (
	zero     = [][]complex64{{0, 0}, {0, 0}}
	identity = [][]complex64{{1, 0}, {0, 1}}
	pauliX   = [][]complex64{{0, 1}, {1, 0}}
	pauliY   = [][]complex64{{0, -1i}, {1i, 0}}
)

func scale(c complex64, x [][]complex64) [][]complex64 {
	y := make([][]complex64, len(x))
	for i, row := range x {
		y[i] = make([]complex64, len(row))
		for j, v := range row {
			y[i][j] = c * v
		}
	}
	return y
}

// XYChain returns the MPO of j Σ_i (X_i X_{i+1} + Y_i Y_{i+1}) on an open chain of length l.
func XYChain(l int, j complex64) ([]*tensor.Dense, error) {
	w := [][][][]complex64{
		{identity, zero, zero, zero},
		{pauliX, zero, zero, zero},
		{pauliY, zero, zero, zero},
		{zero, scale(j, pauliX), scale(j, pauliY), identity},
	}
	return newMPO(w, l)
}

// MagnetizationX returns the MPO of Σ_i X_i.
func MagnetizationX(l int) ([]*tensor.Dense, error) {
	return newMPO([][][][]complex64{
		{identity, zero},
		{pauliX, identity},
	}, l)
}

// MagnetizationY returns the MPO of Σ_i Y_i.
func MagnetizationY(l int) ([]*tensor.Dense, error) {
	return newMPO([][][][]complex64{
		{identity, zero},
		{pauliY, identity},
	}, l)
}

// newMPO repeats the bulk tensor w over l sites.
// The first site is the last row of w, and the last site is the first column.
func newMPO(w [][][][]complex64, l int) ([]*tensor.Dense, error) {
	if l < 2 {
		return nil, errors.Errorf("chain length %d", l)
	}
	firstCol := make([][][][]complex64, len(w))
	for i, row := range w {
		firstCol[i] = row[:1]
	}

	mpo := make([]*tensor.Dense, 0, l)
	mpo = append(mpo, t4(w[len(w)-1:]))
	for range l - 2 {
		mpo = append(mpo, t4(w))
	}
	mpo = append(mpo, t4(firstCol))
	return mpo, nil
}

func t4(w [][][][]complex64) *tensor.Dense {
	t := tensor.Zeros(len(w), len(w[0]), len(w[0][0]), len(w[0][0][0]))
	for ijk := range t.All() {
		t.SetAt(ijk, w[ijk[0]][ijk[1]][ijk[2]][ijk[3]])
	}
	return t
}
