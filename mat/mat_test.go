package mat

import (
	"fmt"
	"math"
	"math/cmplx"
	"testing"
)

func TestAdd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a          *COO
		c          complex128
		b          *COO
		z          *COO
		numNonZero int
	}{
		{
			a: M([][]complex128{
				{1, 0},
				{0, 2i},
			}),
			c: 1i,
			b: M([][]complex128{
				{1i, 0},
				{2, -5},
			}),
			z: M([][]complex128{
				{0, 0},
				{2i, -3i},
			}),
			numNonZero: 2,
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Add(test.c, test.b)
			if !test.a.Equal(test.z) {
				t.Fatalf("%s, expected %s", test.a, test.z)
			}
			if len(test.a.Data) != test.numNonZero {
				t.Fatalf("%d, expected %d", len(test.a.Data), test.numNonZero)
			}
		})
	}
}

func TestMul(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a *COO
		b *COO
		c *COO
	}{
		{
			a: M([][]complex128{
				{0, 0},
				{-1, 2},
			}),
			b: M([][]complex128{
				{0, 1},
				{0, 2},
			}),
			c: M([][]complex128{
				{0, 0},
				{0, 4},
			}),
		},
		// Multiply scalar using broadcast.
		{
			a: M([][]complex128{
				{0, 3},
				{-1, 2},
			}),
			b: M([][]complex128{{-2}}),
			c: M([][]complex128{
				{0, -6},
				{2, -4},
			}),
		},
		// Multiply vector using broadcast.
		{
			a: M([][]complex128{
				{0, 3},
				{-1, 2},
			}),
			b: M([][]complex128{{3}, {-2}}),
			c: M([][]complex128{
				{0, 9},
				{2, -4},
			}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Mul(test.b)
			if !test.a.Equal(test.c) {
				t.Fatalf("%s, expected %s", test.a, test.c)
			}
		})
	}
}

func TestKron(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a *COO
		b *COO
		c *COO
	}{
		{
			a: M([][]complex128{
				{1, -4, 7},
				{-2, 0, 3},
			}),
			b: M([][]complex128{
				{8, -9, -6, 5},
				{1, -3, 0, 7},
				{2, 8, -8, -3},
				{1, 2, -5, -1},
			}),
			c: M([][]complex128{
				{8, -9, -6, 5, -32, 36, 24, -20, 56, -63, -42, 35},
				{1, -3, 0, 7, -4, 12, 0, -28, 7, -21, 0, 49},
				{2, 8, -8, -3, -8, -32, 32, 12, 14, 56, -56, -21},
				{1, 2, -5, -1, -4, -8, 20, 4, 7, 14, -35, -7},
				{-16, 18, 12, -10, 0, 0, 0, 0, 24, -27, -18, 15},
				{-2, 6, 0, -14, 0, 0, 0, 0, 3, -9, 0, 21},
				{-4, -16, 16, 6, 0, 0, 0, 0, 6, 24, -24, -9},
				{-2, -4, 10, 2, 0, 0, 0, 0, 3, 6, -15, -3},
			}),
		},
		// Scalar kronecker.
		{
			a: M([][]complex128{{1}}),
			b: M([][]complex128{
				{1, 2},
				{3, 4},
			}),
			c: M([][]complex128{
				{1, 2},
				{3, 4},
			}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Kron(test.b)
			if !test.a.Equal(test.c) {
				t.Fatalf("%s, expected %s", test.a, test.c)
			}
		})
	}
}

func TestSetSort(t *testing.T) {
	t.Parallel()
	m := COOZeros(3, 3)
	m.Set(2, 0, 1)
	m.Set(0, 1, 2)
	m.Set(2, 0, -1)
	m.Set(1, 1, 0)
	m.Set(0, 1, 1i)
	m.Sort()
	expected := M([][]complex128{
		{0, 2 + 1i, 0},
		{0, 0, 0},
		{0, 0, 0},
	})
	if !m.Equal(expected) {
		t.Fatalf("%s, expected %s", m, expected)
	}
	if v := m.At(0, 1); v != 2+1i {
		t.Fatalf("%v", v)
	}
	if v := m.At(2, 2); v != 0 {
		t.Fatalf("%v", v)
	}
}

func TestMulVec(t *testing.T) {
	t.Parallel()
	m := M(PauliY)
	y := m.MulVec(nil, []complex128{1, 2})
	expected := []complex128{-2i, 1i}
	for i, v := range y {
		if v != expected[i] {
			t.Fatalf("%v, expected %v", y, expected)
		}
	}

	h := M([][]complex128{
		{2, 1},
		{1, -2},
	})
	v := []float64{1 / math.Sqrt2, 1 / math.Sqrt2}
	if e := h.Expectation(v); math.Abs(e-1) > 1e-12 {
		t.Fatalf("%f", e)
	}
}

func TestEigenSym(t *testing.T) {
	t.Parallel()
	tests := []struct {
		m    *COO
		vals []float64
	}{
		{
			m:    M(PauliX),
			vals: []float64{-1, 1},
		},
		{
			m: M([][]complex128{
				{2, -1, 0},
				{-1, 2, -1},
				{0, -1, 2},
			}),
			vals: []float64{2 - math.Sqrt2, 2, 2 + math.Sqrt2},
		},
		{
			m: M([][]complex128{
				{0, 0},
				{0, 0},
			}),
			vals: []float64{0, 0},
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.m), func(t *testing.T) {
			t.Parallel()
			vvs, err := test.m.EigenSym()
			if err != nil {
				t.Fatalf("%+v", err)
			}
			for i, vv := range vvs {
				if math.Abs(vv.Val-test.vals[i]) > 1e-9 {
					t.Fatalf("%d %f, expected %f", i, vv.Val, test.vals[i])
				}

				// Check m v = val v.
				x := make([]complex128, len(vv.Vec))
				for j, c := range vv.Vec {
					x[j] = complex(c, 0)
				}
				y := test.m.MulVec(nil, x)
				var norm float64
				for j, c := range vv.Vec {
					norm += c * c
					if cmplx.Abs(y[j]-complex(vv.Val*c, 0)) > 1e-9 {
						t.Fatalf("%d %v %v", i, y, vv.Vec)
					}
				}
				if math.Abs(norm-1) > 1e-9 {
					t.Fatalf("%d %f", i, norm)
				}
			}

			lo, hi := test.m.Gerschgorin()
			if lo > vvs[0].Val+1e-9 || hi < vvs[len(vvs)-1].Val-1e-9 {
				t.Fatalf("%f %f %v", lo, hi, vvs)
			}
		})
	}
}

func TestEigenSymErrors(t *testing.T) {
	t.Parallel()
	if _, err := M(PauliY).EigenSym(); err == nil {
		t.Fatalf("expected error for complex matrix")
	}
	if _, err := M([][]complex128{{1, 2}, {0, 1}}).EigenSym(); err == nil {
		t.Fatalf("expected error for non symmetric matrix")
	}
	if _, err := COOZeros(2, 3).EigenSym(); err == nil {
		t.Fatalf("expected error for non square matrix")
	}
}

func TestCOOReadWrite(t *testing.T) {
	t.Parallel()
	tests := []struct {
		m *COO
	}{
		{
			m: M([][]complex128{
				{-1, -1, 0, 0.5},
				{-1, -1, 2i, 0},
				{0, 0, 0, 0},
				{1 - 1i, 0, -1, -1},
			}),
		},
		{
			m: COOIdentity(5),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.m), func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			if err := test.m.WriteCOO(dir); err != nil {
				t.Fatalf("%+v", err)
			}
			m, err := ReadCOO(dir)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if !m.Equal(test.m) {
				t.Fatalf("%s, expected %s", m, test.m)
			}
		})
	}
}
