// Package circuit builds quantum circuits of the XY model.
//
// Rotation angles are in half-turns, so that Ry(a) rotates by πa radians, and XXPhase(a) = exp(-i π a/2 X⊗X).
package circuit

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// Op is a gate type.
type Op string

const (
	OpH       Op = "H"
	OpX       Op = "X"
	OpS       Op = "S"
	OpSdg     Op = "Sdg"
	OpRx      Op = "Rx"
	OpRy      Op = "Ry"
	OpRz      Op = "Rz"
	OpXXPhase Op = "XXPhase"
	OpYYPhase Op = "YYPhase"
	OpZZPhase Op = "ZZPhase"
	OpMeasure Op = "Measure"
	OpBarrier Op = "Barrier"
)

// Rotation reports whether op is parametrized by an angle.
func (op Op) Rotation() bool {
	switch op {
	case OpRx, OpRy, OpRz, OpXXPhase, OpYYPhase, OpZZPhase:
		return true
	}
	return false
}

// axis returns the Pauli that generates op, or 0 if op is not diagonal in a single Pauli basis.
func (op Op) axis() byte {
	switch op {
	case OpRx, OpXXPhase, OpX:
		return 'X'
	case OpRy, OpYYPhase:
		return 'Y'
	case OpRz, OpZZPhase, OpS, OpSdg:
		return 'Z'
	}
	return 0
}

// Gate is an operation on some qubits.
type Gate struct {
	Op     Op
	Qubits []int
	Angle  float64
}

func (g Gate) String() string {
	if g.Op.Rotation() {
		return fmt.Sprintf("%s(%g)%v", g.Op, g.Angle, g.Qubits)
	}
	return fmt.Sprintf("%s%v", g.Op, g.Qubits)
}

// Circuit is a sequence of gates on N qubits.
type Circuit struct {
	Name  string
	N     int
	Gates []Gate
}

// New returns an empty circuit on n qubits.
func New(n int) *Circuit {
	return &Circuit{N: n}
}

// Copy returns a deep copy of c.
func (c *Circuit) Copy() *Circuit {
	cp := &Circuit{Name: c.Name, N: c.N, Gates: make([]Gate, len(c.Gates))}
	for i, g := range c.Gates {
		cp.Gates[i] = Gate{Op: g.Op, Qubits: slices.Clone(g.Qubits), Angle: g.Angle}
	}
	return cp
}

func (c *Circuit) add(op Op, angle float64, qubits ...int) *Circuit {
	for i, q := range qubits {
		if q < 0 || q >= c.N {
			panic(fmt.Sprintf("%s qubit %d out of range %d", op, q, c.N))
		}
		if slices.Contains(qubits[:i], q) {
			panic(fmt.Sprintf("%s repeated qubit %v", op, qubits))
		}
	}
	c.Gates = append(c.Gates, Gate{Op: op, Qubits: qubits, Angle: angle})
	return c
}

func (c *Circuit) H(q int) *Circuit             { return c.add(OpH, 0, q) }
func (c *Circuit) X(q int) *Circuit             { return c.add(OpX, 0, q) }
func (c *Circuit) S(q int) *Circuit             { return c.add(OpS, 0, q) }
func (c *Circuit) Sdg(q int) *Circuit           { return c.add(OpSdg, 0, q) }
func (c *Circuit) Rx(a float64, q int) *Circuit { return c.add(OpRx, a, q) }
func (c *Circuit) Ry(a float64, q int) *Circuit { return c.add(OpRy, a, q) }
func (c *Circuit) Rz(a float64, q int) *Circuit { return c.add(OpRz, a, q) }
func (c *Circuit) XXPhase(a float64, q0, q1 int) *Circuit {
	return c.add(OpXXPhase, a, q0, q1)
}
func (c *Circuit) YYPhase(a float64, q0, q1 int) *Circuit {
	return c.add(OpYYPhase, a, q0, q1)
}
func (c *Circuit) ZZPhase(a float64, q0, q1 int) *Circuit {
	return c.add(OpZZPhase, a, q0, q1)
}
func (c *Circuit) Measure(q int) *Circuit { return c.add(OpMeasure, 0, q) }

// Barrier prevents gates from being moved or fused across it.
// Without arguments it spans all qubits.
func (c *Circuit) Barrier(qubits ...int) *Circuit {
	if len(qubits) == 0 {
		for q := range c.N {
			qubits = append(qubits, q)
		}
		return c.add(OpBarrier, 0, qubits...)
	}
	return c.add(OpBarrier, 0, slices.Clone(qubits)...)
}

// MeasureAll measures every qubit into the classical bit of the same index.
func (c *Circuit) MeasureAll() *Circuit {
	for q := range c.N {
		c.Measure(q)
	}
	return c
}

// Append appends the gates of other, which must act on the same number of qubits.
func (c *Circuit) Append(other *Circuit) error {
	if other.N != c.N {
		return errors.Errorf("qubits %d %d", c.N, other.N)
	}
	c.Gates = append(c.Gates, other.Copy().Gates...)
	return nil
}

// Measured reports whether the circuit contains measurements.
func (c *Circuit) Measured() bool {
	return slices.ContainsFunc(c.Gates, func(g Gate) bool { return g.Op == OpMeasure })
}

// Depth returns the number of gate layers, where gates on disjoint qubits share a layer.
func Depth(c *Circuit) int {
	layer := make([]int, c.N)
	var depth int
	for _, g := range c.Gates {
		var d int
		for _, q := range g.Qubits {
			d = max(d, layer[q])
		}
		if g.Op != OpBarrier {
			d++
		}
		for _, q := range g.Qubits {
			layer[q] = d
		}
		depth = max(depth, d)
	}
	return depth
}

// TwoQubitCount returns the number of two qubit gates.
func TwoQubitCount(c *Circuit) int {
	var n int
	for _, g := range c.Gates {
		if g.Op != OpBarrier && len(g.Qubits) == 2 {
			n++
		}
	}
	return n
}
