package mat

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	FnameShape = "shape.csv"
	FnameCOO   = "coo.csv"

	// symTol is the tolerance of the symmetry check before diagonalization.
	symTol = 1e-12
)

var (
	PauliX = [][]complex128{
		{0, 1},
		{1, 0},
	}
	PauliY = [][]complex128{
		{0, -1i},
		{1i, 0},
	}
	PauliZ = [][]complex128{
		{1, 0},
		{0, -1},
	}
)

type vRowCol struct {
	v   complex128
	row int
	col int
}

// COO is a sparse matrix in coordinate format, with entries sorted in row major order.
type COO struct {
	rows int
	cols int
	Data []vRowCol

	m map[[2]int]complex128
}

func M(dense [][]complex128) *COO {
	m := &COO{rows: len(dense), cols: len(dense[0]), Data: make([]vRowCol, 0)}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
		}
	}
	return m
}

func COOZeros(rows, cols int) *COO {
	m := M([][]complex128{{0}})
	m.Zeros(rows, cols)
	return m
}

func COOIdentity(rows int) *COO {
	m := M([][]complex128{{0}})
	m.Zeros(rows, rows)
	for i := 0; i < rows; i++ {
		m.Data = append(m.Data, vRowCol{v: 1, row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int { return m.rows }
func (m *COO) Cols() int { return m.cols }

// NumNonZero returns the number of stored entries.
func (m *COO) NumNonZero() int { return len(m.Data) }

func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

func (m *COO) Scalar(v complex128) {
	m.rows, m.cols = 1, 1
	m.Data = m.Data[:0]
	m.Data = append(m.Data, vRowCol{v: v, row: 0, col: 0})
}

// Set appends an entry.
// Entries must be set in row major order, and each position at most once.
func (m *COO) Set(row, col int, v complex128) {
	if v == 0 {
		return
	}
	m.Data = append(m.Data, vRowCol{v: v, row: row, col: col})
}

// Sort restores row major order after out of order calls to Set.
// Entries at the same position are summed.
func (m *COO) Sort() {
	slices.SortFunc(m.Data, rowMajor)
	merged := m.Data[:0]
	for _, v := range m.Data {
		if n := len(merged); n > 0 && merged[n-1].row == v.row && merged[n-1].col == v.col {
			merged[n-1].v += v.v
			continue
		}
		merged = append(merged, v)
	}
	m.Data = slices.DeleteFunc(merged, func(v vRowCol) bool {
		return v.v == 0
	})
}

func (m *COO) At(i, j int) complex128 {
	k, ok := slices.BinarySearchFunc(m.Data, vRowCol{row: i, col: j}, rowMajor)
	if !ok {
		return 0
	}
	return m.Data[k].v
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows {
		return false
	}
	if a.cols != b.cols {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i, av := range a.Data {
		bv := b.Data[i]
		if av != bv {
			return false
		}
	}
	return true
}

// ApproxEqual reports whether a and b are equal up to an absolute tolerance.
func (a *COO) ApproxEqual(b *COO, tol float64) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	bm := b.index()
	defer clear(bm)
	for _, av := range a.Data {
		bv := bm[[2]int{av.row, av.col}]
		if cmplx.Abs(av.v-bv) > tol {
			return false
		}
		delete(bm, [2]int{av.row, av.col})
	}
	for _, bv := range bm {
		if cmplx.Abs(bv) > tol {
			return false
		}
	}
	return true
}

func (m *COO) index() map[[2]int]complex128 {
	if m.m == nil {
		m.m = make(map[[2]int]complex128)
	}
	clear(m.m)
	for _, v := range m.Data {
		m.m[[2]int{v.row, v.col}] = v.v
	}
	return m.m
}

// broadcast returns the position in b that pairs with av.
func broadcast(a, b *COO, av vRowCol) [2]int {
	var byx [2]int
	switch {
	case b.rows == 1 && b.cols == 1:
	case b.rows == a.rows && b.cols == 1:
		byx[0] = av.row
	case b.rows == a.rows && b.cols == a.cols:
		byx[0], byx[1] = av.row, av.col
	default:
		panic(fmt.Sprintf("wrong dimensions %dx%d %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	return byx
}

// Add performs a += c*b.
func (a *COO) Add(c complex128, b *COO) {
	bm := b.index()
	for i, av := range a.Data {
		byx := broadcast(a, b, av)
		bv := bm[byx]
		delete(bm, byx)

		a.Data[i].v = av.v + c*bv
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	for yx, bv := range bm {
		a.Data = append(a.Data, vRowCol{v: c * bv, row: yx[0], col: yx[1]})
	}
	slices.SortFunc(a.Data, rowMajor)
	clear(bm)
}

// Mul performs elementwise multiplication with broadcasting.
func (a *COO) Mul(b *COO) {
	bm := b.index()
	for i, av := range a.Data {
		a.Data[i].v = av.v * bm[broadcast(a, b, av)]
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	clear(bm)
}

func (a *COO) Kron(b *COO) {
	rows := a.rows * b.rows
	cols := a.cols * b.cols
	a.rows, a.cols = rows, cols

	prevElemNum := len(a.Data)
	for i := prevElemNum - 1; i >= 0; i-- {
		av := a.Data[i]
		a.Data[i].v = 0
		for _, bv := range b.Data {
			ky := av.row*b.rows + bv.row
			kx := av.col*b.cols + bv.col
			a.Data = append(a.Data, vRowCol{v: av.v * bv.v, row: ky, col: kx})
		}
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	slices.SortFunc(a.Data, rowMajor)
}

// MulVec computes dst = m x.
func (m *COO) MulVec(dst, x []complex128) []complex128 {
	if len(x) != m.cols {
		panic(fmt.Sprintf("%d %d", len(x), m.cols))
	}
	dst = slices.Grow(dst[:0], m.rows)[:m.rows]
	clear(dst)
	for _, v := range m.Data {
		dst[v.row] += v.v * x[v.col]
	}
	return dst
}

// Expectation returns <v|m|v> for a real vector v and a hermitian m.
func (m *COO) Expectation(v []float64) float64 {
	if len(v) != m.cols || m.rows != m.cols {
		panic(fmt.Sprintf("%d %dx%d", len(v), m.rows, m.cols))
	}
	var e float64
	for _, d := range m.Data {
		e += v[d.row] * real(d.v) * v[d.col]
	}
	return e
}

func (m *COO) Dense() [][]complex128 {
	dense := make([][]complex128, m.rows)
	for i := range dense {
		dense[i] = make([]complex128, m.cols)
	}

	for _, v := range m.Data {
		dense[v.row][v.col] = v.v
	}

	return dense
}

func (m *COO) WriteCOO(dir string) error {
	shapePath := filepath.Join(dir, FnameShape)
	if err := os.WriteFile(shapePath, []byte(fmt.Sprintf("%d,%d", m.rows, m.cols)), 0644); err != nil {
		return errors.Wrap(err, "")
	}

	cooPath := filepath.Join(dir, FnameCOO)
	cooF, err := os.Create(cooPath)
	if err != nil {
		return errors.Wrap(err, "")
	}

	w := csv.NewWriter(cooF)
	// prev is the previously written entry, whose repeated value and row are left blank.
	prev := vRowCol{v: cmplx.NaN(), row: -1, col: -1}
	for _, v := range m.Data {
		var vStr string
		if v.v != prev.v {
			vStr = FormatNumpy(v.v)
		}
		var rowStr string
		if v.row != prev.row {
			rowStr = strconv.Itoa(v.row)
		}
		if err1 := w.Write([]string{vStr, rowStr, strconv.Itoa(v.col)}); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
		prev = v
	}
	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}

	if err1 := cooF.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

type COOReader struct {
	f *os.File
	r *csv.Reader
	i int

	prev vRowCol
}

func NewCOOReader(dir string) (*COOReader, error) {
	r := &COOReader{i: -1}

	cooPath := filepath.Join(dir, FnameCOO)
	var err error
	r.f, err = os.Open(cooPath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	r.r = csv.NewReader(r.f)
	return r, nil
}

func (r *COOReader) Close() error {
	return r.f.Close()
}

func (r *COOReader) Read() (vRowCol, error) {
	r.i++
	record, err := r.r.Read()
	if err == io.EOF {
		return vRowCol{}, io.EOF
	}
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d", r.i))
	}
	if len(record) != 3 {
		return vRowCol{}, errors.Errorf("%d %#v", r.i, record)
	}

	var vrc vRowCol
	switch {
	case record[0] == "":
		vrc.v = r.prev.v
	default:
		s := strings.ReplaceAll(record[0], "j", "i")
		vrc.v, err = strconv.ParseComplex(s, 128)
		if err != nil {
			return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
		}
	}

	switch {
	case record[1] == "":
		vrc.row = r.prev.row
	default:
		vrc.row, err = strconv.Atoi(record[1])
		if err != nil {
			return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
		}
	}

	vrc.col, err = strconv.Atoi(record[2])
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
	}

	r.prev = vrc
	return vrc, nil
}

func ReadCOO(dir string) (*COO, error) {
	m := M([][]complex128{{0}})
	var err error
	m.rows, m.cols, err = readShape(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	r, err := NewCOOReader(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer r.Close()
	for {
		v, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "")
		}

		m.Data = append(m.Data, v)
	}

	return m, nil
}

func readShape(dir string) (int, int, error) {
	f, err := os.Open(filepath.Join(dir, FnameShape))
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	if len(records) == 0 {
		return -1, -1, errors.Errorf("empty")
	}
	row := records[0]

	if len(row) != 2 {
		return -1, -1, errors.Errorf("%#v", row)
	}
	i, err := strconv.Atoi(row[0])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}
	j, err := strconv.Atoi(row[1])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}

	return i, j, nil
}

func (m *COO) String() string {
	mm := m.index()
	defer clear(mm)

	lines := []string{}
	for i := 0; i < m.rows; i++ {
		cs := []string{}
		for j := 0; j < m.cols; j++ {
			v := mm[[2]int{i, j}]
			switch {
			case imag(v) == 0:
				cs = append(cs, format(real(v)))
			case real(v) == 0:
				cs = append(cs, format(imag(v))+"i")
			default:
				cs = append(cs, format(real(v))+"+"+format(imag(v))+"i")
			}
		}
		l := strings.Join(cs, "\t")
		lines = append(lines, l)
	}

	return strings.Join(lines, "\n")
}

// ValVec is an eigenvalue and its normalized eigenvector.
type ValVec struct {
	Val float64
	Vec []float64
}

// EigenSym diagonalizes a real symmetric matrix.
// The eigenpairs are sorted by ascending eigenvalue.
func (m *COO) EigenSym() ([]ValVec, error) {
	if m.rows != m.cols {
		return nil, errors.Errorf("not square %d %d", m.rows, m.cols)
	}
	mm := m.index()
	defer clear(mm)
	sym := mat.NewSymDense(m.rows, nil)
	for _, v := range m.Data {
		if imag(v.v) != 0 {
			return nil, errors.Errorf("not real %d %d %v", v.row, v.col, v.v)
		}
		if t := mm[[2]int{v.col, v.row}]; cmplx.Abs(t-v.v) > symTol {
			return nil, errors.Errorf("not symmetric %d %d %v %v", v.row, v.col, v.v, t)
		}
		if v.row > v.col {
			continue
		}
		sym.SetSym(v.row, v.col, real(v.v))
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, errors.Errorf("eig.Factorize failed %d", m.rows)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	vvs := make([]ValVec, 0, len(vals))
	for i, v := range vals {
		vec := make([]float64, m.rows)
		mat.Col(vec, i, &vecs)
		vvs = append(vvs, ValVec{Val: v, Vec: vec})
	}
	slices.SortStableFunc(vvs, func(a, b ValVec) int { return cmp.Compare(a.Val, b.Val) })

	return vvs, nil
}

// Gerschgorin returns lower and upper bounds of the real parts of the eigenvalues.
// See Theorem A3, Bounds for the eigenvalues of a matrix, Kenneth R. Garren.
func (m *COO) Gerschgorin() (float64, float64) {
	if len(m.Data) == 0 {
		return 0, 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	update := func(center complex128, radius float64) {
		lo = min(lo, real(center)-radius)
		hi = max(hi, real(center)+radius)
	}

	var curRow int = m.Data[0].row
	var curCenter complex128
	var curRadius float64
	rowsSeen := 0
	for _, v := range m.Data {
		if v.row != curRow {
			update(curCenter, curRadius)
			rowsSeen++

			curRow = v.row
			curCenter = 0
			curRadius = 0
		}

		if v.row == v.col {
			curCenter = v.v
		} else {
			curRadius += cmplx.Abs(v.v)
		}
	}
	// Last current row.
	update(curCenter, curRadius)
	rowsSeen++

	// Rows without entries contribute a zero eigenvalue circle.
	if rowsSeen < m.rows {
		update(0, 0)
	}
	return lo, hi
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float64) string {
	// If v is 0 or -0, return "0" immediately to avoid returning "-0".
	if v == 0 {
		return " 0"
	}

	s := strconv.FormatFloat(v, 'g', -1, 64)

	// Add a space before non-negative numbers to align with other negative numbers in the same column.
	if v >= 0 {
		s = " " + s
	}

	return s
}

func FormatNumpy(v complex128) string {
	switch {
	case imag(v) == 0:
		return strconv.FormatFloat(real(v), 'g', -1, 64)
	default:
		s := strconv.FormatComplex(v, 'g', -1, 128)
		s = strings.ReplaceAll(s, "i", "j")
		return s
	}
}
