// Package mps finds ground states of spin chains with matrix product states.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package mps

import (
	"fmt"
	"math/cmplx"
	"math/rand/v2"
	"slices"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

const (
	// mpsLeftAxis is the axis of a_{l-1} in Figure 6.
	mpsLeftAxis  = 0
	mpsUpAxis    = 1
	mpsRightAxis = 2
	// mpoLeftAxis is the axis of b_{l-1} in Figure 35.
	mpoLeftAxis  = 0
	mpoRightAxis = 1
	mpoUpAxis    = 2
	mpoDownAxis  = 3

	// Machine precision of complex64.
	epsilon = 0x1p-23
)

// NewMPS decomposes a state tensor, with one axis per site, into a left canonical matrix product state.
func NewMPS(state *tensor.Dense, bufs [2]*tensor.Dense) []*tensor.Dense {
	shape := state.Shape()

	sites := make([]*tensor.Dense, 0, len(shape))
	leftD := 1
	for _, physD := range shape[:len(shape)-1] {
		q := tensor.Zeros(1)
		r := tensor.QR(q, state.Reshape(leftD*physD, -1), bufs)
		leftD = r.Shape()[0]
		state = r
		sites = append(sites, q.Reshape(-1, physD, leftD))
	}

	state = state.Reshape(leftD, shape[len(shape)-1], 1)
	sites = append(sites, resetCopy(tensor.Zeros(1), state))
	return sites
}

// RandMPS returns a random matrix product state whose bond dimensions grow towards the center of the chain, capped at maxD.
// See the discussion below equation 71 in section 4.1.4, Ulrich Schollwock.
func RandMPS(mpo []*tensor.Dense, maxD int) []*tensor.Dense {
	n := len(mpo)
	sites := make([]*tensor.Dense, 0, n)

	physD := mpo[0].Shape()[mpoDownAxis]
	leftD := physD
	sites = append(sites, randTensor(1, physD, min(physD, maxD)))

	for i := 1; i <= n-2; i++ {
		physD := mpo[i].Shape()[mpoDownAxis]
		rightD := leftD
		switch {
		case i < n/2:
			rightD = leftD * physD
		case i > n/2, n%2 == 0:
			rightD = leftD / physD
		}
		leftD = rightD

		prevD := sites[i-1].Shape()[mpsRightAxis]
		sites = append(sites, randTensor(prevD, physD, min(rightD, maxD)))
	}

	physD = mpo[n-1].Shape()[mpoDownAxis]
	prevD := sites[n-2].Shape()[mpsRightAxis]
	sites = append(sites, randTensor(prevD, physD, 1))
	return sites
}

// InnerProduct returns <x|y>.
// See Section 4.2.1 Efficient evaluation of contractions, Ulrich Schollwock.
func InnerProduct(x, y []*tensor.Dense, bufs [2]*tensor.Dense) complex64 {
	if len(x) != len(y) {
		panic(fmt.Sprintf("%d %d", len(x), len(y)))
	}

	const fTopAxis, fBottomAxis = 0, 1
	f := ones(bufs[0], 1, 1)
	for i, xi := range x {
		fy := tensor.Product(bufs[1], f, y[i], [][2]int{{fBottomAxis, mpsLeftAxis}})
		tensor.Product(f, xi.Conj(), fy, [][2]int{{mpsLeftAxis, fTopAxis}, {mpsUpAxis, mpsUpAxis}})
	}

	if !slices.Equal(f.Shape(), []int{1, 1}) {
		panic(fmt.Sprintf("%#v", f.Shape()))
	}
	return f.At(0, 0)
}

// LExpressions fills fs with the L expressions of Equation 192, and returns <ms|ws|ms>.
// See Figure 38, Ulrich Schollwock.
func LExpressions(fs, ws, ms []*tensor.Dense, bufs [2]*tensor.Dense) complex64 {
	checkLens(fs, ws, ms)
	f := ones(fs[0], 1, 1, 1)
	for i, w := range ws {
		f = lExpression(fs[i], f, w, ms[i], bufs[:])
	}

	if !slices.Equal(f.Shape(), []int{1, 1, 1}) {
		panic(fmt.Sprintf("%#v", f.Shape()))
	}
	return f.At(0, 0, 0)
}

func lExpression(fi, fPrev, w, m *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	// fPrev is {fTop, fMid, fBot}, and fm is {fTop, fMid, mpsUp, mpsRight}.
	fm := tensor.Product(bufs[0], fPrev, m, [][2]int{{2, mpsLeftAxis}})
	// wfm is {mpoRight, mpoUp, fTop, mpsRight}.
	wfm := tensor.Product(bufs[1], w, fm, [][2]int{{mpoDownAxis, 2}, {mpoLeftAxis, 1}})
	// fi is {mpsRight.conj, mpoRight, mpsRight}.
	tensor.Product(fi, m.Conj(), wfm, [][2]int{{mpsLeftAxis, 2}, {mpsUpAxis, 1}})
	return fi
}

// RExpressions fills fs with the R expressions of Equation 193, and returns <ms|ws|ms>.
// See Figure 38, Ulrich Schollwock.
func RExpressions(fs, ws, ms []*tensor.Dense, bufs [2]*tensor.Dense) complex64 {
	checkLens(fs, ws, ms)
	f := ones(fs[len(fs)-1], 1, 1, 1)
	for i := len(fs) - 1; i >= 0; i-- {
		f = rExpression(fs[i], f, ws[i], ms[i], bufs[:])
	}

	if !slices.Equal(f.Shape(), []int{1, 1, 1}) {
		panic(fmt.Sprintf("%#v", f.Shape()))
	}
	return f.At(0, 0, 0)
}

func rExpression(fi, fNext, w, m *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	// fNext is {fTop, fMid, fBot}, and fm is {fTop, fMid, mpsLeft, mpsUp}.
	fm := tensor.Product(bufs[0], fNext, m, [][2]int{{2, mpsRightAxis}})
	// wfm is {mpoLeft, mpoUp, fTop, mpsLeft}.
	wfm := tensor.Product(bufs[1], w, fm, [][2]int{{mpoDownAxis, 3}, {mpoRightAxis, 1}})
	// fi is {mpsLeft.conj, mpoLeft, mpsLeft}.
	tensor.Product(fi, m.Conj(), wfm, [][2]int{{mpsRightAxis, 2}, {mpsUpAxis, 1}})
	return fi
}

// H2 returns <ms|ws ws|ms>.
// See Figure 44, Section 6.4 Conventional DMRG in MPS language: the subtle differences, Ulrich Schollwock.
func H2(ws, ms []*tensor.Dense, bufs [2]*tensor.Dense) complex64 {
	if len(ws) != len(ms) {
		panic(fmt.Sprintf("%d %d", len(ws), len(ms)))
	}

	// f is {fTop, fMid2, fMid, fBot}.
	f := ones(bufs[0], 1, 1, 1, 1)
	for i, w := range ws {
		m := ms[i]
		// fm is {fTop, fMid2, fMid, mpsUp, mpsRight}.
		fm := tensor.Product(bufs[1], f, m, [][2]int{{3, mpsLeftAxis}})
		// wfm is {mpoRight, mpoUp, fTop, fMid2, mpsRight}.
		wfm := tensor.Product(bufs[0], w, fm, [][2]int{{mpoDownAxis, 3}, {mpoLeftAxis, 2}})
		// wwfm is {mpoRight2, mpoUp2, mpoRight, fTop, mpsRight}.
		wwfm := tensor.Product(bufs[1], w, wfm, [][2]int{{mpoDownAxis, 1}, {mpoLeftAxis, 3}})
		// f is {mpsRight.conj, mpoRight2, mpoRight, mpsRight}.
		f = tensor.Product(bufs[0], m.Conj(), wwfm, [][2]int{{mpsLeftAxis, 3}, {mpsUpAxis, 1}})
	}

	if !slices.Equal(f.Shape(), []int{1, 1, 1, 1}) {
		panic(fmt.Sprintf("%#v", f.Shape()))
	}
	return f.At(0, 0, 0, 0)
}

// SearchOptions control the ground state search.
type SearchOptions struct {
	// MaxIterations is the maximum number of left and right sweep pairs.
	MaxIterations int
	// Tol is the tolerance of the energy variance <H^2> - <H>^2, relative to <H^2>.
	Tol float32
}

// DefaultSearchOptions returns the default ground state search options.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{MaxIterations: 32, Tol: 1e-6}
}

// SearchGroundState sweeps ms towards the ground state of ws, until the energy variance converges.
// fs are buffers for the L and R expressions, one per site.
// See Section 6.3 Iterative ground state search, Ulrich Schollwock.
func SearchGroundState(fs, ws, ms []*tensor.Dense, bufs [10]*tensor.Dense, opt SearchOptions) error {
	rightNormalizeAll(ms, bufs[:3])
	bufs2 := [2]*tensor.Dense(bufs[:2])
	RExpressions(fs, ws, ms, bufs2)

	var variance complex64
	for i := range opt.MaxIterations {
		if err := rightSweep(fs, ws, ms, bufs); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		if err := leftSweep(fs, ws, ms, bufs); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", i))
		}

		norm2 := InnerProduct(ms, ms, bufs2)
		if abs(norm2) < epsilon {
			return errors.Errorf("vanishing norm %f", norm2)
		}
		// leftSweep stops at fs[1], so only fs[0] remains to complete <H>.
		rExpression(fs[0], fs[1], ws[0], ms[0], bufs[:])
		h := fs[0].At(0, 0, 0) / norm2
		h2 := H2(ws, ms, bufs2) / norm2
		variance = h2 - h*h
		if abs(variance) < opt.Tol*max(abs(h2), 1) {
			return nil
		}
	}
	return errors.Errorf("not converged after %d iterations, variance %v", opt.MaxIterations, variance)
}

func leftSweep(fs, ws, ms []*tensor.Dense, bufs [10]*tensor.Dense) error {
	for l := len(ms) - 1; l >= 1; l-- {
		fRight := ones(fs[l], 1, 1, 1)
		if l+1 < len(ms) {
			fRight = fs[l+1]
		}
		if err := optimizeSite(fs[l-1], fRight, ws[l], ms, l, bufs); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", l))
		}

		// ms[l] must be right normalized for the next site's eigenproblem to be an ordinary one.
		rightNormalize(ms, l, bufs[:3])
		fs[l-1].Reset(1)
		rExpression(fs[l], fRight, ws[l], ms[l], bufs[:2])
	}
	return nil
}

func rightSweep(fs, ws, ms []*tensor.Dense, bufs [10]*tensor.Dense) error {
	for l := range len(ms) - 1 {
		fLeft := ones(fs[l], 1, 1, 1)
		if l > 0 {
			fLeft = fs[l-1]
		}
		if err := optimizeSite(fLeft, fs[l+1], ws[l], ms, l, bufs); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", l))
		}

		// Sites left of l are left normalized and sites right of l right normalized,
		// which reduces the generalized eigenproblem of Equation 211 to an ordinary one.
		leftNormalize(ms, l, bufs[:3])
		fs[l+1].Reset(1)
		lExpression(fs[l], fLeft, ws[l], ms[l], bufs[:2])
	}
	return nil
}

// optimizeSite replaces ms[l] with the lowest eigenvector of its effective Hamiltonian.
func optimizeSite(left, right, w *tensor.Dense, ms []*tensor.Dense, l int, bufs [10]*tensor.Dense) error {
	h := effectiveH(bufs[0], left, right, w, bufs[1:])
	eigvals, eigvecs := bufs[1], bufs[2]
	if err := tensor.Arnoldi(eigvals, eigvecs, h, 1, [7]*tensor.Dense(bufs[3:])); err != nil {
		return errors.Wrap(err, "")
	}
	resetCopy(ms[l], eigvecs.Reshape(ms[l].Shape()...))
	return nil
}

// effectiveH returns the H matrix of Equation 210, Section 6.3 Iterative ground state search, Ulrich Schollwock.
func effectiveH(h, left, right, w *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	// right is {rightTop, rightMid, rightBot}, and wRight is {mpoLeft, mpoUp, mpoDown, rightTop, rightBot}.
	wRight := tensor.Product(bufs[0], w, right, [][2]int{{mpoRightAxis, 1}})
	// left is {leftTop, leftMid, leftBot}, and lwr is {leftTop, leftBot, mpoUp, mpoDown, rightTop, rightBot}.
	lwr := tensor.Product(bufs[1], left, wRight, [][2]int{{1, 0}})
	// h is {leftTop, mpoUp, rightTop, leftBot, mpoDown, rightBot}.
	resetCopy(h, lwr.Transpose(0, 2, 4, 1, 3, 5))

	ls, ws, rs := left.Shape(), w.Shape(), right.Shape()
	if ls[0] != ls[2] || ws[mpoUpAxis] != ws[mpoDownAxis] || rs[0] != rs[2] {
		panic(fmt.Sprintf("%#v %#v %#v", ls, ws, rs))
	}
	return h.Reshape(ls[0]*ws[mpoUpAxis]*rs[0], ls[2]*ws[mpoDownAxis]*rs[2])
}

func rightNormalizeAll(ms []*tensor.Dense, bufs []*tensor.Dense) {
	for i := len(ms) - 1; i >= 1; i-- {
		rightNormalize(ms, i, bufs)
	}
}

// rightNormalize decomposes ms[i] = l q^H, keeps q^H at i and absorbs l into ms[i-1].
// See Section 4.4.2 Generation of a right-canonical MPS, Ulrich Schollwock.
func rightNormalize(ms []*tensor.Dense, i int, bufs []*tensor.Dense) {
	s := ms[i].Shape()
	dUp, dRight := s[mpsUpAxis], s[mpsRightAxis]

	q := bufs[0]
	l := lq(q, ms[i].Reshape(s[mpsLeftAxis], dUp*dRight), [2]*tensor.Dense(bufs[1:]))
	resetCopy(ms[i-1], tensor.Product(bufs[1], ms[i-1], l, [][2]int{{mpsRightAxis, 0}}))
	ms[i] = resetCopy(ms[i], q.H()).Reshape(-1, dUp, dRight)
}

// leftNormalize decomposes ms[i] = q r, keeps q at i and absorbs r into ms[i+1].
func leftNormalize(ms []*tensor.Dense, i int, bufs []*tensor.Dense) {
	s := ms[i].Shape()
	dLeft, dUp := s[mpsLeftAxis], s[mpsUpAxis]

	q := bufs[0]
	r := tensor.QR(q, ms[i].Reshape(dLeft*dUp, s[mpsRightAxis]), [2]*tensor.Dense(bufs[1:]))
	resetCopy(ms[i+1], tensor.Product(bufs[1], r, ms[i+1], [][2]int{{1, mpsLeftAxis}}))
	ms[i] = resetCopy(ms[i], q).Reshape(dLeft, dUp, -1)
}

func lq(q, a *tensor.Dense, bufs [2]*tensor.Dense) *tensor.Dense {
	r := tensor.QR(q, a.H(), bufs)
	return r.H()
}

func checkLens(fs, ws, ms []*tensor.Dense) {
	if len(fs) != len(ws) || len(ws) != len(ms) {
		panic(fmt.Sprintf("%d %d %d", len(fs), len(ws), len(ms)))
	}
}

func resetCopy(dst, src *tensor.Dense) *tensor.Dense {
	shape := src.Shape()
	dst.Reset(shape...).Set(make([]int, len(shape)), src)
	return dst
}

func ones(t *tensor.Dense, shape ...int) *tensor.Dense {
	t.Reset(shape...)
	for ijk := range t.All() {
		t.SetAt(ijk, 1)
	}
	return t
}

func abs(x complex64) float32 {
	return float32(cmplx.Abs(complex128(x)))
}

func randTensor(shape ...int) *tensor.Dense {
	t := tensor.Zeros(shape...)
	for ijk := range t.All() {
		t.SetAt(ijk, complex(rand.Float32()*2-1, rand.Float32()*2-1))
	}
	return t
}
