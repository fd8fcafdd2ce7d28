package circuit

import (
	"math"

	"github.com/pkg/errors"
)

// halfTurns converts radians to half-turns.
func halfTurns(radians float64) float64 {
	return radians * 2 / math.Pi
}

// XYStep returns layers of symmetric second order Trotter steps of exp(-i dt Σ (XX+YY)) on n qubits.
// Each layer is YY(dt/2) XX(dt) YY(dt/2) over all couplings.
func XYStep(n int, dt float64, couplings [][2]int, layers int) (*Circuit, error) {
	if err := checkCouplings(n, couplings); err != nil {
		return nil, errors.Wrap(err, "")
	}
	c := New(n)
	for range layers {
		for _, cp := range couplings {
			c.YYPhase(halfTurns(dt/2), cp[0], cp[1])
		}
		for _, cp := range couplings {
			c.XXPhase(halfTurns(dt), cp[0], cp[1])
		}
		for _, cp := range couplings {
			c.YYPhase(halfTurns(dt/2), cp[0], cp[1])
		}
	}
	return c, nil
}

// XYStepMerged is XYStep with the adjacent YY half steps of consecutive layers fused:
// YY(dt/2) [XX(dt) YY(dt)]^(layers-1) XX(dt) YY(dt/2).
func XYStepMerged(n int, dt float64, couplings [][2]int, layers int) (*Circuit, error) {
	if err := checkCouplings(n, couplings); err != nil {
		return nil, errors.Wrap(err, "")
	}
	c := New(n)
	if layers <= 0 {
		return c, nil
	}
	for _, cp := range couplings {
		c.YYPhase(halfTurns(dt/2), cp[0], cp[1])
	}
	for range layers - 1 {
		for _, cp := range couplings {
			c.XXPhase(halfTurns(dt), cp[0], cp[1])
		}
		for _, cp := range couplings {
			c.YYPhase(halfTurns(dt), cp[0], cp[1])
		}
	}
	for _, cp := range couplings {
		c.XXPhase(halfTurns(dt), cp[0], cp[1])
	}
	for _, cp := range couplings {
		c.YYPhase(halfTurns(dt/2), cp[0], cp[1])
	}
	return c, nil
}

// InitialState prepares every qubit in H|0> rotated by Ry of 2 theta radians.
// theta = 0 is the fully ordered product state along x, and larger theta raises its energy.
func InitialState(n int, theta float64) *Circuit {
	c := New(n)
	for q := range n {
		c.H(q)
		c.Ry(halfTurns(theta), q)
	}
	return c
}

// BasisChange appends the rotation that maps the eigenbasis of the Pauli basis to the computational basis.
func BasisChange(c *Circuit, basis string) error {
	switch basis {
	case "X":
		for q := range c.N {
			c.H(q)
		}
	case "Y":
		for q := range c.N {
			c.Sdg(q)
			c.H(q)
		}
	case "Z":
	default:
		return errors.Errorf("unknown basis %q", basis)
	}
	return nil
}

// Measurement returns a copy of evolved with the basis change for basis and measurements on all qubits.
func Measurement(evolved *Circuit, basis, name string) (*Circuit, error) {
	c := evolved.Copy()
	c.Name = name
	if err := BasisChange(c, basis); err != nil {
		return nil, errors.Wrap(err, "")
	}
	c.MeasureAll()
	return c, nil
}

func checkCouplings(n int, couplings [][2]int) error {
	for _, cp := range couplings {
		if cp[0] == cp[1] || cp[0] < 0 || cp[1] < 0 || cp[0] >= n || cp[1] >= n {
			return errors.Errorf("%v %d", cp, n)
		}
	}
	return nil
}
