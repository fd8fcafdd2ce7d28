// Package lattice maps lattice sites to qubits and lists nearest neighbour couplings.
//
// Sites are addressed by [x, y, u] where u is the index within the unit cell.
// Qubits are numbered in C order over (x, y, u), so that x varies slowest.
package lattice

import (
	"fmt"

	"github.com/pkg/errors"
)

// BC is a boundary condition.
type BC int

const (
	Open BC = iota
	Periodic
)

func (bc BC) String() string {
	switch bc {
	case Open:
		return "open"
	case Periodic:
		return "periodic"
	default:
		return fmt.Sprintf("BC(%d)", int(bc))
	}
}

// ParseBC parses "open" or "periodic".
func ParseBC(s string) (BC, error) {
	switch s {
	case "open":
		return Open, nil
	case "periodic":
		return Periodic, nil
	default:
		return Open, errors.Errorf("unknown boundary condition %q", s)
	}
}

// Pair is a coupling between unit cell site U1 and unit cell site U2 displaced by Dx unit cells.
type Pair struct {
	U1 int
	U2 int
	Dx [2]int
}

// Lattice is a two dimensional Bravais lattice with a basis.
type Lattice interface {
	Name() string
	Ls() [2]int
	UnitCell() int
	BC() BC
	Pairs() []Pair
}

type lattice struct {
	name  string
	ls    [2]int
	unit  int
	bc    BC
	pairs []Pair
}

func (l *lattice) Name() string  { return l.name }
func (l *lattice) Ls() [2]int    { return l.ls }
func (l *lattice) UnitCell() int { return l.unit }
func (l *lattice) BC() BC        { return l.bc }
func (l *lattice) Pairs() []Pair { return l.pairs }

// Square returns a lx by ly square lattice.
func Square(lx, ly int, bc BC) (Lattice, error) {
	if lx < 1 || ly < 1 {
		return nil, errors.Errorf("%d %d", lx, ly)
	}
	l := &lattice{name: "square", ls: [2]int{lx, ly}, unit: 1, bc: bc}
	l.pairs = []Pair{
		{U1: 0, U2: 0, Dx: [2]int{1, 0}},
		{U1: 0, U2: 0, Dx: [2]int{0, 1}},
	}
	return l, nil
}

// Chain returns a one dimensional chain of length n.
func Chain(n int, bc BC) (Lattice, error) {
	if n < 1 {
		return nil, errors.Errorf("%d", n)
	}
	l := &lattice{name: "chain", ls: [2]int{n, 1}, unit: 1, bc: bc}
	l.pairs = []Pair{{U1: 0, U2: 0, Dx: [2]int{1, 0}}}
	return l, nil
}

// Honeycomb returns a lx by ly honeycomb lattice with two sites per unit cell.
func Honeycomb(lx, ly int, bc BC) (Lattice, error) {
	if lx < 1 || ly < 1 {
		return nil, errors.Errorf("%d %d", lx, ly)
	}
	l := &lattice{name: "honeycomb", ls: [2]int{lx, ly}, unit: 2, bc: bc}
	l.pairs = []Pair{
		{U1: 0, U2: 1, Dx: [2]int{0, 0}},
		{U1: 1, U2: 0, Dx: [2]int{1, 0}},
		{U1: 1, U2: 0, Dx: [2]int{0, 1}},
	}
	return l, nil
}

// New returns a lattice by name.
func New(name string, lx, ly int, bc BC) (Lattice, error) {
	switch name {
	case "square":
		return Square(lx, ly, bc)
	case "chain":
		return Chain(lx*ly, bc)
	case "honeycomb":
		return Honeycomb(lx, ly, bc)
	default:
		return nil, errors.Errorf("unknown lattice %q", name)
	}
}

// NumSites returns the number of sites, which is also the number of qubits.
func NumSites(lat Lattice) int {
	ls := lat.Ls()
	return ls[0] * ls[1] * lat.UnitCell()
}

// Order returns the site coordinates in qubit order.
func Order(lat Lattice) [][3]int {
	ls := lat.Ls()
	order := make([][3]int, 0, NumSites(lat))
	for x := range ls[0] {
		for y := range ls[1] {
			for u := range lat.UnitCell() {
				order = append(order, [3]int{x, y, u})
			}
		}
	}
	return order
}

// Qubit returns the qubit of a site.
func Qubit(lat Lattice, site [3]int) int {
	ls := lat.Ls()
	return (site[0]*ls[1]+site[1])*lat.UnitCell() + site[2]
}

// Mapping pairs a site with its qubit.
type Mapping struct {
	Site  [3]int
	Qubit int
}

func (m Mapping) String() string {
	return fmt.Sprintf("%v->%d", m.Site, m.Qubit)
}

// CoordinateToQubit lists sites and the qubits they are mapped to.
func CoordinateToQubit(lat Lattice) []Mapping {
	mapping := make([]Mapping, 0, NumSites(lat))
	for q, site := range Order(lat) {
		mapping = append(mapping, Mapping{Site: site, Qubit: q})
	}
	return mapping
}

// QubitToCoordinate returns the site of each qubit, indexed by qubit.
func QubitToCoordinate(lat Lattice) [][3]int {
	return Order(lat)
}

// Couplings returns the nearest neighbour qubit pairs.
// Couplings are grouped by pair direction, and bonds within a group rarely share a qubit,
// which lets a device run them in parallel.
// In a short periodic direction, a wrapped bond may join a pair of qubits that is already coupled,
// or a qubit with itself. Such bonds are omitted.
func Couplings(lat Lattice) [][2]int {
	ls := lat.Ls()
	order := Order(lat)
	couplings := make([][2]int, 0)
	seen := make(map[[2]int]struct{})
	for _, p := range lat.Pairs() {
	Sites:
		for q1, site := range order {
			if site[2] != p.U1 {
				continue
			}

			partner := [3]int{site[0] + p.Dx[0], site[1] + p.Dx[1], p.U2}
			for d := range 2 {
				if partner[d] >= 0 && partner[d] < ls[d] {
					continue
				}
				if lat.BC() == Open {
					continue Sites
				}
				partner[d] = mod(partner[d], ls[d])
			}

			q2 := Qubit(lat, partner)
			if q1 == q2 {
				continue
			}
			key := [2]int{min(q1, q2), max(q1, q2)}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			couplings = append(couplings, [2]int{q1, q2})
		}
	}
	return couplings
}

// NumQubits returns the number of qubits touched by couplings.
func NumQubits(couplings [][2]int) int {
	n := 0
	for _, c := range couplings {
		n = max(n, c[0]+1, c[1]+1)
	}
	return n
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
