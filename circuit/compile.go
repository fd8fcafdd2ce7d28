package circuit

import (
	"math"
	"slices"

	"github.com/pkg/errors"
)

// angleTol is the tolerance below which a rotation angle is considered a multiple of a full period.
const angleTol = 1e-12

// Compile optimizes a circuit.
// Level 0 returns a copy.
// Level 1 and above fuse rotations of the same kind on the same qubits, when every gate between them commutes with them,
// and then drop rotations whose angle is a multiple of 4 half-turns.
func Compile(c *Circuit, level int) (*Circuit, error) {
	if level < 0 || level > 2 {
		return nil, errors.Errorf("optimisation level %d", level)
	}
	out := c.Copy()
	if level == 0 {
		return out, nil
	}

	gates := out.Gates
	out.Gates = make([]Gate, 0, len(gates))
	for _, g := range gates {
		if g.Op.Rotation() {
			if k := fusable(out.Gates, g); k >= 0 {
				out.Gates[k].Angle += g.Angle
				continue
			}
		}
		out.Gates = append(out.Gates, g)
	}
	out.Gates = slices.DeleteFunc(out.Gates, identityRotation)
	return out, nil
}

// fusable returns the index of a gate in gates that g can be merged into, or -1.
func fusable(gates []Gate, g Gate) int {
	for k := len(gates) - 1; k >= 0; k-- {
		prev := gates[k]
		if !overlaps(prev.Qubits, g.Qubits) {
			continue
		}
		if prev.Op == g.Op && sameQubits(prev.Qubits, g.Qubits) {
			return k
		}
		if prev.Op == OpBarrier || prev.Op == OpMeasure {
			return -1
		}
		if a := g.Op.axis(); a == 0 || prev.Op.axis() != a {
			return -1
		}
	}
	return -1
}

func identityRotation(g Gate) bool {
	if !g.Op.Rotation() {
		return false
	}
	r := math.Mod(g.Angle, 4)
	return math.Abs(r) < angleTol || math.Abs(math.Abs(r)-4) < angleTol
}

func overlaps(a, b []int) bool {
	for _, q := range a {
		if slices.Contains(b, q) {
			return true
		}
	}
	return false
}

func sameQubits(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for _, q := range a {
		if !slices.Contains(b, q) {
			return false
		}
	}
	return true
}
