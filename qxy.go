// Package qxy computes microcanonical expectation values of the quantum XY model.
//
// The Hamiltonian is H = j Σ_<a,b> (X_a X_b + Y_a Y_b) over the couplings of a lattice.
// Qubit 0 is the most significant bit of a basis state, and bit value 1 denotes spin down.
package qxy

import (
	"math/bits"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/qxy/mat"
)

var (
	identity = mat.COOIdentity(2)
)

// Basis is a set of computational basis states, optionally restricted to a magnetization sector.
type Basis struct {
	n   int
	nup int

	states []uint64
	index  map[uint64]int
}

// NewBasis returns the full basis of n spins.
func NewBasis(n int) *Basis {
	b := &Basis{n: n, nup: -1}
	return b
}

// NewSectorBasis returns the basis of n spins with exactly nup spins up.
func NewSectorBasis(n, nup int) (*Basis, error) {
	if nup < 0 || nup > n {
		return nil, errors.Errorf("%d %d", n, nup)
	}
	b := &Basis{n: n, nup: nup, index: make(map[uint64]int)}
	downs := n - nup
	for s := range uint64(1) << n {
		if bits.OnesCount64(s) != downs {
			continue
		}
		b.index[s] = len(b.states)
		b.states = append(b.states, s)
	}
	return b, nil
}

// N returns the number of spins.
func (b *Basis) N() int { return b.n }

// Len returns the number of basis states.
func (b *Basis) Len() int {
	if b.nup < 0 {
		return 1 << b.n
	}
	return len(b.states)
}

// State returns the i-th basis state.
func (b *Basis) State(i int) uint64 {
	if b.nup < 0 {
		return uint64(i)
	}
	return b.states[i]
}

// Index returns the position of state s in the basis.
func (b *Basis) Index(s uint64) (int, bool) {
	if b.nup < 0 {
		return int(s), s < uint64(1)<<b.n
	}
	i, ok := b.index[s]
	return i, ok
}

// Bitstring returns the bits of the i-th basis state, qubit 0 first.
func (b *Basis) Bitstring(i int) string {
	s := b.State(i)
	var sb strings.Builder
	for q := range b.n {
		sb.WriteByte('0' + byte(bit(s, b.n, q)))
	}
	return sb.String()
}

func (b *Basis) mask(q int) uint64 {
	return uint64(1) << (b.n - 1 - q)
}

func bit(s uint64, n, q int) uint64 {
	return (s >> (n - 1 - q)) & 1
}

// XYHamiltonian returns j Σ (X_a X_b + Y_a Y_b) in the basis b.
// X_a X_b + Y_a Y_b swaps antiparallel spins a and b with amplitude 2, and annihilates parallel ones.
func XYHamiltonian(b *Basis, couplings [][2]int, j float64) (*mat.COO, error) {
	for _, c := range couplings {
		if c[0] == c[1] || c[0] < 0 || c[1] < 0 || c[0] >= b.n || c[1] >= b.n {
			return nil, errors.Errorf("%v %d", c, b.n)
		}
	}

	dim := b.Len()
	h := mat.COOZeros(dim, dim)
	for i := range dim {
		s := b.State(i)
		for _, c := range couplings {
			if bit(s, b.n, c[0]) == bit(s, b.n, c[1]) {
				continue
			}
			flipped := s ^ b.mask(c[0]) ^ b.mask(c[1])
			k, ok := b.Index(flipped)
			if !ok {
				return nil, errors.Errorf("%b not in basis", flipped)
			}
			h.Set(i, k, complex(2*j, 0))
		}
	}
	h.Sort()
	return h, nil
}

// XYHamiltonianKron builds the same Hamiltonian as XYHamiltonian in the full basis, from Kronecker products of Pauli matrices.
func XYHamiltonianKron(n int, couplings [][2]int, j float64) *mat.COO {
	hamiltonian := mat.COOZeros(1<<n, 1<<n)
	system := mat.M([][]complex128{{0}})
	for _, c := range couplings {
		for _, pauli := range [][][]complex128{mat.PauliX, mat.PauliY} {
			system.Scalar(1)
			for q := range n {
				switch {
				case q == c[0] || q == c[1]:
					system.Kron(mat.M(pauli))
				default:
					system.Kron(identity)
				}
			}
			hamiltonian.Add(complex(j, 0), system)
		}
	}
	return hamiltonian
}

// OrderParameter returns Sx^2 + Sy^2 where Sx = (1/N) Σ X_i and Sy = (1/N) Σ Y_i.
// Expanding the squares gives (1/N^2) (2N + 2 Σ_{i<j} (X_i X_j + Y_i Y_j)).
func OrderParameter(b *Basis) (*mat.COO, error) {
	n := b.n
	pairs := make([][2]int, 0, n*(n-1)/2)
	for i := range n {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	nn := float64(n * n)
	op, err := XYHamiltonian(b, pairs, 2/nn)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	diag := mat.COOIdentity(b.Len())
	op.Add(complex(2*float64(n)/nn, 0), diag)
	return op, nil
}

// PauliOp is a single qubit Pauli operator, with Label one of I, X, Y, Z.
type PauliOp struct {
	Label byte
	Qubit int
}

// PauliString returns the label of a Pauli product on n qubits, with identity on unlisted qubits.
func PauliString(n int, ops []PauliOp) string {
	s := []byte(strings.Repeat("I", n))
	for q := range n {
		for _, op := range ops {
			if op.Qubit == q {
				s[q] = op.Label
				break
			}
		}
	}
	return string(s)
}
