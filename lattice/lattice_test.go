package lattice

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCouplings(t *testing.T) {
	t.Parallel()
	square := func(lx, ly int, bc BC) Lattice {
		l, err := Square(lx, ly, bc)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		return l
	}
	chain := func(n int, bc BC) Lattice {
		l, err := Chain(n, bc)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		return l
	}
	honeycomb := func(lx, ly int, bc BC) Lattice {
		l, err := Honeycomb(lx, ly, bc)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		return l
	}
	tests := []struct {
		lat       Lattice
		couplings [][2]int
	}{
		{
			lat:       square(2, 2, Periodic),
			couplings: [][2]int{{0, 2}, {1, 3}, {0, 1}, {2, 3}},
		},
		{
			lat: square(3, 3, Open),
			couplings: [][2]int{
				{0, 3}, {1, 4}, {2, 5}, {3, 6}, {4, 7}, {5, 8},
				{0, 1}, {1, 2}, {3, 4}, {4, 5}, {6, 7}, {7, 8},
			},
		},
		{
			lat: square(3, 3, Periodic),
			couplings: [][2]int{
				{0, 3}, {1, 4}, {2, 5}, {3, 6}, {4, 7}, {5, 8}, {6, 0}, {7, 1}, {8, 2},
				{0, 1}, {1, 2}, {2, 0}, {3, 4}, {4, 5}, {5, 3}, {6, 7}, {7, 8}, {8, 6},
			},
		},
		{
			lat:       chain(4, Periodic),
			couplings: [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
		},
		{
			lat:       chain(4, Open),
			couplings: [][2]int{{0, 1}, {1, 2}, {2, 3}},
		},
		{
			lat:       honeycomb(1, 1, Open),
			couplings: [][2]int{{0, 1}},
		},
		{
			lat: honeycomb(2, 2, Periodic),
			couplings: [][2]int{
				{0, 1}, {2, 3}, {4, 5}, {6, 7},
				{1, 4}, {3, 6}, {5, 0}, {7, 2},
				{1, 2}, {3, 0}, {5, 6}, {7, 4},
			},
		},
		{
			lat:       chain(2, Periodic),
			couplings: [][2]int{{0, 1}},
		},
		{
			lat:       chain(1, Periodic),
			couplings: [][2]int{},
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s %v %v", test.lat.Name(), test.lat.Ls(), test.lat.BC()), func(t *testing.T) {
			t.Parallel()
			couplings := Couplings(test.lat)
			if diff := cmp.Diff(test.couplings, couplings); diff != "" {
				t.Fatalf("%s", diff)
			}
		})
	}
}

func TestCouplingsPeriodicSquare(t *testing.T) {
	t.Parallel()
	lat, err := Square(4, 4, Periodic)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	couplings := Couplings(lat)
	if len(couplings) != 32 {
		t.Fatalf("%d", len(couplings))
	}
	if n := NumQubits(couplings); n != 16 {
		t.Fatalf("%d", n)
	}

	// Every site has exactly four neighbours.
	degree := make([]int, 16)
	seen := make(map[[2]int]bool)
	for _, c := range couplings {
		degree[c[0]]++
		degree[c[1]]++
		key := [2]int{min(c[0], c[1]), max(c[0], c[1])}
		if seen[key] {
			t.Fatalf("duplicate %v", c)
		}
		seen[key] = true
	}
	for q, d := range degree {
		if d != 4 {
			t.Fatalf("%d %d", q, d)
		}
	}
}

func TestCouplingsPeriodicDegree(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		ls     [2]int
		bonds  int
		degree int
	}{
		{name: "square", ls: [2]int{2, 2}, bonds: 4, degree: 2},
		{name: "square", ls: [2]int{2, 3}, bonds: 9, degree: 3},
		{name: "square", ls: [2]int{3, 3}, bonds: 18, degree: 4},
		{name: "honeycomb", ls: [2]int{2, 2}, bonds: 12, degree: 3},
		{name: "honeycomb", ls: [2]int{2, 3}, bonds: 18, degree: 3},
		{name: "honeycomb", ls: [2]int{3, 3}, bonds: 27, degree: 3},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s %v", test.name, test.ls), func(t *testing.T) {
			t.Parallel()
			lat, err := New(test.name, test.ls[0], test.ls[1], Periodic)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			couplings := Couplings(lat)
			if len(couplings) != test.bonds {
				t.Fatalf("%d, expected %d", len(couplings), test.bonds)
			}
			degree := make([]int, NumSites(lat))
			for _, c := range couplings {
				degree[c[0]]++
				degree[c[1]]++
			}
			for q, d := range degree {
				if d != test.degree {
					t.Fatalf("qubit %d degree %d, expected %d", q, d, test.degree)
				}
			}
		})
	}
}

func TestMapping(t *testing.T) {
	t.Parallel()
	lat, err := Honeycomb(2, 3, Open)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	mapping := CoordinateToQubit(lat)
	if len(mapping) != 12 {
		t.Fatalf("%d", len(mapping))
	}
	sites := QubitToCoordinate(lat)
	for _, m := range mapping {
		if sites[m.Qubit] != m.Site {
			t.Fatalf("%v %v", m, sites[m.Qubit])
		}
		if q := Qubit(lat, m.Site); q != m.Qubit {
			t.Fatalf("%v %d", m, q)
		}
	}
	if m := mapping[7]; m.Site != [3]int{1, 0, 1} {
		t.Fatalf("%v", m)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	if _, err := New("kagome", 2, 2, Open); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Square(0, 3, Open); err == nil {
		t.Fatalf("expected error")
	}
	lat, err := New("chain", 3, 2, Periodic)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if ls := lat.Ls(); ls != [2]int{6, 1} {
		t.Fatalf("%v", ls)
	}
	bc, err := ParseBC("periodic")
	if err != nil || bc != Periodic {
		t.Fatalf("%v %v", bc, err)
	}
}
