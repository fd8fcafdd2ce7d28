// Package statevector simulates circuits exactly on a vector of 2^N amplitudes.
//
// Qubit 0 is the most significant bit of a basis state index.
package statevector

import (
	"fmt"
	"maps"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/qxy"
	"github.com/fumin/qxy/circuit"
	"github.com/fumin/qxy/mat"
)

// MaxQubits bounds the size of simulated states.
const MaxQubits = 26

// State is a pure state of N qubits.
type State struct {
	n   int
	amp []complex128
}

// New returns |0...0> on n qubits.
func New(n int) (*State, error) {
	if n < 1 || n > MaxQubits {
		return nil, errors.Errorf("%d qubits", n)
	}
	s := &State{n: n, amp: make([]complex128, 1<<n)}
	s.amp[0] = 1
	return s, nil
}

// Run simulates c starting from |0...0>.
func Run(c *circuit.Circuit) (*State, error) {
	s, err := New(c.N)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := s.Apply(c); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

func (s *State) N() int { return s.n }

// Amplitudes returns the underlying amplitudes.
func (s *State) Amplitudes() []complex128 { return s.amp }

func (s *State) mask(q int) int {
	return 1 << (s.n - 1 - q)
}

// Apply applies the unitary gates of c.
// Measurements are deferred to Sample, so no gate may act on a qubit after it is measured.
func (s *State) Apply(c *circuit.Circuit) error {
	if c.N != s.n {
		return errors.Errorf("circuit has %d qubits, state has %d", c.N, s.n)
	}
	measured := make([]bool, s.n)
	for i, g := range c.Gates {
		switch g.Op {
		case circuit.OpMeasure:
			measured[g.Qubits[0]] = true
			continue
		case circuit.OpBarrier:
			continue
		}
		for _, q := range g.Qubits {
			if measured[q] {
				return errors.Errorf("gate %d %s after measurement", i, g)
			}
		}
		if err := s.apply(g); err != nil {
			return errors.Wrap(err, fmt.Sprintf("gate %d", i))
		}
	}
	return nil
}

func (s *State) apply(g circuit.Gate) error {
	phi := math.Pi * g.Angle / 2
	c, sn := complex(math.Cos(phi), 0), complex(math.Sin(phi), 0)
	switch g.Op {
	case circuit.OpH:
		r := complex(1/math.Sqrt2, 0)
		s.apply1(g.Qubits[0], [2][2]complex128{{r, r}, {r, -r}})
	case circuit.OpX:
		s.apply1(g.Qubits[0], [2][2]complex128{{0, 1}, {1, 0}})
	case circuit.OpS:
		s.apply1(g.Qubits[0], [2][2]complex128{{1, 0}, {0, 1i}})
	case circuit.OpSdg:
		s.apply1(g.Qubits[0], [2][2]complex128{{1, 0}, {0, -1i}})
	case circuit.OpRx:
		s.apply1(g.Qubits[0], [2][2]complex128{{c, -1i * sn}, {-1i * sn, c}})
	case circuit.OpRy:
		s.apply1(g.Qubits[0], [2][2]complex128{{c, -sn}, {sn, c}})
	case circuit.OpRz:
		s.apply1(g.Qubits[0], [2][2]complex128{{cmplx.Exp(complex(0, -phi)), 0}, {0, cmplx.Exp(complex(0, phi))}})
	case circuit.OpXXPhase:
		// exp(-iφ XX) = cos φ - i sin φ XX, with XX|ab> = |āb̄>.
		s.apply2(g.Qubits[0], g.Qubits[1], func(a00, a01, a10, a11 complex128) (complex128, complex128, complex128, complex128) {
			return c*a00 - 1i*sn*a11, c*a01 - 1i*sn*a10, c*a10 - 1i*sn*a01, c*a11 - 1i*sn*a00
		})
	case circuit.OpYYPhase:
		// YY|00> = -|11>, YY|01> = |10>.
		s.apply2(g.Qubits[0], g.Qubits[1], func(a00, a01, a10, a11 complex128) (complex128, complex128, complex128, complex128) {
			return c*a00 + 1i*sn*a11, c*a01 - 1i*sn*a10, c*a10 - 1i*sn*a01, c*a11 + 1i*sn*a00
		})
	case circuit.OpZZPhase:
		same, diff := cmplx.Exp(complex(0, -phi)), cmplx.Exp(complex(0, phi))
		s.apply2(g.Qubits[0], g.Qubits[1], func(a00, a01, a10, a11 complex128) (complex128, complex128, complex128, complex128) {
			return same * a00, diff * a01, diff * a10, same * a11
		})
	default:
		return errors.Errorf("unknown gate %s", g)
	}
	return nil
}

func (s *State) apply1(q int, u [2][2]complex128) {
	m := s.mask(q)
	for i := range s.amp {
		if i&m != 0 {
			continue
		}
		j := i | m
		a0, a1 := s.amp[i], s.amp[j]
		s.amp[i] = u[0][0]*a0 + u[0][1]*a1
		s.amp[j] = u[1][0]*a0 + u[1][1]*a1
	}
}

func (s *State) apply2(q0, q1 int, f func(a00, a01, a10, a11 complex128) (complex128, complex128, complex128, complex128)) {
	m0, m1 := s.mask(q0), s.mask(q1)
	for i := range s.amp {
		if i&(m0|m1) != 0 {
			continue
		}
		i01, i10, i11 := i|m1, i|m0, i|m0|m1
		s.amp[i], s.amp[i01], s.amp[i10], s.amp[i11] = f(s.amp[i], s.amp[i01], s.amp[i10], s.amp[i11])
	}
}

// Norm returns the 2-norm of the state, which is 1 for unitary evolution.
func (s *State) Norm() float64 {
	var sum float64
	for _, a := range s.amp {
		sum += real(a)*real(a) + imag(a)*imag(a)
	}
	return math.Sqrt(sum)
}

// Expectation returns the real part of <ψ|op|ψ>.
func (s *State) Expectation(op *mat.COO) float64 {
	v := op.MulVec(nil, s.amp)
	var e complex128
	for i, a := range s.amp {
		e += cmplx.Conj(a) * v[i]
	}
	return real(e)
}

// hopping returns <ψ|X_a X_b + Y_a Y_b|ψ>.
func (s *State) hopping(a, b int) float64 {
	ma, mb := s.mask(a), s.mask(b)
	var e float64
	for i, amp := range s.amp {
		if (i&ma != 0) == (i&mb != 0) {
			continue
		}
		e += 2 * real(cmplx.Conj(amp)*s.amp[i^ma^mb])
	}
	return e
}

// Energy returns <ψ|H|ψ> for H = j Σ (X_a X_b + Y_a Y_b) over the couplings.
func (s *State) Energy(couplings [][2]int, j float64) float64 {
	var e float64
	for _, c := range couplings {
		e += s.hopping(c[0], c[1])
	}
	return j * e
}

// OrderParameter returns <Sx^2 + Sy^2> = (1/N^2) (2N + 2 Σ_{a<b} <X_a X_b + Y_a Y_b>).
func (s *State) OrderParameter() float64 {
	n := s.n
	e := 2 * float64(n)
	for a := range n {
		for b := a + 1; b < n; b++ {
			e += 2 * s.hopping(a, b)
		}
	}
	return e / float64(n*n)
}

// Sample draws shots bitstrings from the Born distribution |ψ|^2.
func (s *State) Sample(shots int, rng *rand.Rand) qxy.Counts {
	cdf := make([]float64, len(s.amp))
	var total float64
	for i, a := range s.amp {
		total += real(a)*real(a) + imag(a)*imag(a)
		cdf[i] = total
	}

	hits := make(map[int]int)
	for range shots {
		u := rng.Float64() * total
		i := sort.SearchFloat64s(cdf, u)
		// Skip over zero probability states that share the cumulative value.
		for i < len(cdf)-1 && cdf[i] <= u {
			i++
		}
		hits[i]++
	}

	counts := make(qxy.Counts, len(hits))
	for i, f := range hits {
		counts[s.bitstring(i)] = f
	}
	return counts
}

func (s *State) bitstring(i int) string {
	b := strconv.FormatInt(int64(i), 2)
	return strings.Repeat("0", s.n-len(b)) + b
}

// ReadoutNoise flips each measured bit independently with probability p.
func ReadoutNoise(counts qxy.Counts, p float64, rng *rand.Rand) qxy.Counts {
	noisy := make(qxy.Counts, len(counts))
	for _, bs := range slices.Sorted(maps.Keys(counts)) {
		for range counts[bs] {
			b := []byte(bs)
			for k := range b {
				if rng.Float64() >= p {
					continue
				}
				b[k] ^= '0' ^ '1'
			}
			noisy[string(b)]++
		}
	}
	return noisy
}
