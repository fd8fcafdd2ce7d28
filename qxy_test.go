package qxy

import (
	"fmt"
	"math"
	"testing"

	"github.com/fumin/qxy/lattice"
	"github.com/fumin/qxy/mat"
)

func TestXYHamiltonian(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n           int
		couplings   [][2]int
		hamiltonian *mat.COO
	}{
		{
			n:         2,
			couplings: [][2]int{{0, 1}},
			hamiltonian: mat.M([][]complex128{
				{0, 0, 0, 0},
				{0, 0, -2, 0},
				{0, -2, 0, 0},
				{0, 0, 0, 0},
			}),
		},
		{
			n:         3,
			couplings: [][2]int{{0, 1}, {1, 2}},
			hamiltonian: mat.M([][]complex128{
				{0, 0, 0, 0, 0, 0, 0, 0},
				{0, 0, -2, 0, 0, 0, 0, 0},
				{0, -2, 0, 0, -2, 0, 0, 0},
				{0, 0, 0, 0, 0, -2, 0, 0},
				{0, 0, -2, 0, 0, 0, 0, 0},
				{0, 0, 0, -2, 0, 0, -2, 0},
				{0, 0, 0, 0, 0, -2, 0, 0},
				{0, 0, 0, 0, 0, 0, 0, 0},
			}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %v", test.n, test.couplings), func(t *testing.T) {
			t.Parallel()
			h, err := XYHamiltonian(NewBasis(test.n), test.couplings, -1)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if !h.Equal(test.hamiltonian) {
				t.Fatalf("\n%s, expected \n\n%s", h, test.hamiltonian)
			}
		})
	}
}

func TestXYHamiltonianKron(t *testing.T) {
	t.Parallel()
	square := func(lx, ly int, bc lattice.BC) lattice.Lattice {
		l, err := lattice.Square(lx, ly, bc)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		return l
	}
	tests := []struct {
		lat lattice.Lattice
	}{
		{lat: square(4, 1, lattice.Open)},
		{lat: square(2, 2, lattice.Periodic)},
		{lat: square(3, 2, lattice.Periodic)},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.lat.Ls()), func(t *testing.T) {
			t.Parallel()
			n := lattice.NumSites(test.lat)
			couplings := lattice.Couplings(test.lat)
			h, err := XYHamiltonian(NewBasis(n), couplings, -1)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			hKron := XYHamiltonianKron(n, couplings, -1)
			if !h.ApproxEqual(hKron, 1e-12) {
				t.Fatalf("\n%s, expected \n\n%s", h, hKron)
			}
		})
	}
}

func TestXYHamiltonianInvalidCoupling(t *testing.T) {
	t.Parallel()
	if _, err := XYHamiltonian(NewBasis(3), [][2]int{{0, 3}}, -1); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := XYHamiltonian(NewBasis(3), [][2]int{{1, 1}}, -1); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSectorBasis(t *testing.T) {
	t.Parallel()
	b, err := NewSectorBasis(4, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if b.Len() != 6 {
		t.Fatalf("%d", b.Len())
	}
	expected := []string{"0011", "0101", "0110", "1001", "1010", "1100"}
	for i, e := range expected {
		if s := b.Bitstring(i); s != e {
			t.Fatalf("%d %s, expected %s", i, s, e)
		}
		if j, ok := b.Index(b.State(i)); !ok || j != i {
			t.Fatalf("%d %d %v", i, j, ok)
		}
	}
	if _, ok := b.Index(0b0111); ok {
		t.Fatalf("0111 is not in the sector")
	}
	if _, err := NewSectorBasis(3, 4); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGroundEnergyOpenChain(t *testing.T) {
	t.Parallel()
	// The open XY chain maps to free fermions with hopping 2, whose single particle energies are -4cos(kπ/5).
	var expected float64
	for k := 1; k <= 4; k++ {
		if e := -4 * math.Cos(float64(k)*math.Pi/5); e < 0 {
			expected += e
		}
	}

	couplings := [][2]int{{0, 1}, {1, 2}, {2, 3}}
	sector, err := NewSectorBasis(4, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for _, b := range []*Basis{NewBasis(4), sector} {
		h, err := XYHamiltonian(b, couplings, -1)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		vvs, err := h.EigenSym()
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if math.Abs(vvs[0].Val-expected) > 1e-9 {
			t.Fatalf("%d %f, expected %f", b.Len(), vvs[0].Val, expected)
		}
	}
}

func TestOrderParameter(t *testing.T) {
	t.Parallel()
	for _, n := range []int{2, 3, 5} {
		t.Run(fmt.Sprintf("%d", n), func(t *testing.T) {
			t.Parallel()
			op, err := OrderParameter(NewBasis(n))
			if err != nil {
				t.Fatalf("%+v", err)
			}

			// All spins pointing along x: <Sx^2> = 1 and <Sy^2> = 1/N.
			plus := make([]float64, 1<<n)
			for i := range plus {
				plus[i] = 1 / math.Sqrt(float64(len(plus)))
			}
			if e := op.Expectation(plus); math.Abs(e-(1+1/float64(n))) > 1e-12 {
				t.Fatalf("%f", e)
			}

			// All spins up along z: <Sx^2> = <Sy^2> = 1/N.
			up := make([]float64, 1<<n)
			up[0] = 1
			if e := op.Expectation(up); math.Abs(e-2/float64(n)) > 1e-12 {
				t.Fatalf("%f", e)
			}
		})
	}
}

func TestPauliString(t *testing.T) {
	t.Parallel()
	s := PauliString(5, []PauliOp{{Label: 'X', Qubit: 3}, {Label: 'Y', Qubit: 0}, {Label: 'Z', Qubit: 3}})
	if s != "YIIXI" {
		t.Fatalf("%s", s)
	}
}
