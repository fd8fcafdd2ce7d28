package experiment

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/fumin/qxy"
	"github.com/fumin/qxy/backend/emulator"
	"github.com/fumin/qxy/circuit"
	"github.com/fumin/qxy/lattice"
	"github.com/fumin/qxy/mat"
	"github.com/fumin/qxy/statevector"
	"github.com/fumin/qxy/store"
)

func testConfig(t *testing.T) Config {
	cfg := Default()
	cfg.Dir = t.TempDir()
	cfg.Lattice = LatticeConfig{Kind: "square", Lx: 2, Ly: 2, BC: "periodic"}
	cfg.TMax = 4
	cfg.Thetas = []float64{0, 0.4}
	cfg.Shots = 400
	cfg.Machine = "H1-1SC"
	cfg.ED.Lattice = LatticeConfig{Kind: "square", Lx: 2, Ly: 3, BC: "open"}
	cfg.ED.Points = 10
	cfg.ED.TimingSizes = [][2]int{{2, 2}, {2, 3}, {3, 3}}
	cfg.Circuits.Lattice = LatticeConfig{Kind: "square", Lx: 2, Ly: 2, BC: "periodic"}
	cfg.Circuits.Thetas = []float64{0, math.Pi / 8}
	cfg.Circuits.TimingSizes = [][2]int{{2, 2}, {2, 3}, {3, 3}}
	cfg.Ground = GroundConfig{L: 4, BondDim: 4}
	require.NoError(t, cfg.Validate())
	return cfg
}

func requireFile(t *testing.T, fpath string) {
	t.Helper()
	info, err := os.Stat(fpath)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0), fpath)
}

func TestSubmitRetrieve(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	ctx := context.Background()
	e := emulator.New(emulator.Config{Machine: cfg.Machine, Workers: 2, Seed: 7})
	defer e.Close()
	st, err := store.Open(cfg.StoreDSN())
	require.NoError(t, err)
	defer st.Close()

	r, err := Submit(ctx, cfg, e, e, st)
	require.NoError(t, err)
	require.Equal(t, SubmitReport{Submitted: 12}, r)
	_, err = e.ProjectByName(ctx, cfg.Project)
	require.NoError(t, err)

	// A second submission finds all handles stored.
	r, err = Submit(ctx, cfg, e, e, st)
	require.NoError(t, err)
	require.Equal(t, SubmitReport{Skipped: 12}, r)

	rec, err := st.GetHandle(ctx, "XY_theta=0.40_n=2_basis=Y")
	require.NoError(t, err)
	require.Equal(t, 2, rec.NSteps)
	require.Equal(t, "Y", rec.Basis)
	require.Equal(t, cfg.Machine, rec.Handle.Backend)

	datasets, err := Retrieve(ctx, cfg, e, st)
	require.NoError(t, err)
	require.Len(t, datasets, 2)

	lat, err := cfg.Lattice.Build()
	require.NoError(t, err)
	couplings := lattice.Couplings(lat)
	n := lattice.NumSites(lat)
	for _, d := range datasets {
		if diff := cmp.Diff([]float64{0.2, 0.4, 0.6}, d.Ts, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Fatalf("%s", diff)
		}
		for i, v := range d.OrderParameters {
			c := circuit.InitialState(n, d.Theta)
			step, err := circuit.XYStepMerged(n, cfg.Dt, couplings, i+1)
			require.NoError(t, err)
			require.NoError(t, c.Append(step))
			s, err := statevector.Run(c)
			require.NoError(t, err)
			exact := s.OrderParameter()
			errbar := d.OrderParameterErrorbars[i]
			if math.Abs(v-exact) > 5*errbar+0.02 {
				t.Fatalf("theta %f step %d: %f +- %f, expected %f", d.Theta, i+1, v, errbar, exact)
			}
		}

		stored, err := st.GetDataset(ctx, d.Theta)
		require.NoError(t, err)
		require.Equal(t, d, stored)
		exported, err := store.ReadDatasetJSON(filepath.Join(cfg.DataDir(), d.ID()+".json"))
		require.NoError(t, err)
		require.Equal(t, d, exported)
	}

	fpath, err := Visualise(ctx, cfg, st)
	require.NoError(t, err)
	requireFile(t, fpath)

	// Without datasets in the store, the exported files are plotted.
	empty, err := store.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer empty.Close()
	fpath, err = Visualise(ctx, cfg, empty)
	require.NoError(t, err)
	requireFile(t, fpath)
}

func TestSubmitLostJobs(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Thetas = []float64{0.4}
	cfg.TMax = 3
	ctx := context.Background()
	st, err := store.Open(cfg.StoreDSN())
	require.NoError(t, err)
	defer st.Close()

	e1 := emulator.New(emulator.Config{Machine: cfg.Machine, Seed: 1})
	r, err := Submit(ctx, cfg, e1, e1, st)
	require.NoError(t, err)
	require.Equal(t, SubmitReport{Submitted: 4}, r)
	require.NoError(t, e1.Close())

	// A new emulator knows none of the stored handles.
	e2 := emulator.New(emulator.Config{Machine: cfg.Machine, Seed: 2})
	defer e2.Close()
	r, err = Submit(ctx, cfg, e2, e2, st)
	require.NoError(t, err)
	require.Equal(t, SubmitReport{Submitted: 4}, r)
	r, err = Submit(ctx, cfg, e2, e2, st)
	require.NoError(t, err)
	require.Equal(t, SubmitReport{Skipped: 4}, r)

	datasets, err := Retrieve(ctx, cfg, e2, st)
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	require.Len(t, datasets[0].OrderParameters, 2)
}

func TestRetrieveMissing(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	ctx := context.Background()
	e := emulator.New(emulator.Config{Machine: cfg.Machine})
	defer e.Close()
	st, err := store.Open(cfg.StoreDSN())
	require.NoError(t, err)
	defer st.Close()

	_, err = Retrieve(ctx, cfg, e, st)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = Visualise(ctx, cfg, st)
	require.Error(t, err)
}

func TestCircuitSweep(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.TMax = 6
	r, err := CircuitSweep(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, r.Trajectories, 2)

	// Product states tilted by theta have <X> = cos(2 theta) and <Y> = 0.
	tests := []struct {
		energy float64
		order  float64
	}{
		{energy: -4, order: 1.25},
		{energy: -2, order: 0.875},
	}
	for i, test := range tests {
		tr := r.Trajectories[i]
		if math.Abs(tr.Energy-test.energy) > 1e-9 {
			t.Fatalf("%d %f, expected %f", i, tr.Energy, test.energy)
		}
		if math.Abs(tr.OrderParameters[0]-test.order) > 1e-9 {
			t.Fatalf("%d %f, expected %f", i, tr.OrderParameters[0], test.order)
		}
		require.Len(t, tr.OrderParameters, cfg.TMax)
		require.Len(t, tr.Ts, cfg.TMax)
		require.InDelta(t, float64(cfg.TMax-1)*cfg.Dt, tr.Ts[cfg.TMax-1], 1e-12)
		require.Equal(t, tr.OrderParameters[0], tr.TimeAverages[0])
	}
	require.Len(t, r.Plots, 2)
	for _, fpath := range r.Plots {
		requireFile(t, fpath)
	}
	requireFile(t, filepath.Join(cfg.Dir, fnameCircuitSweep))
}

func TestCircuitFigures(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	trajectories := []Trajectory{
		{Theta: 0, EnergyDensity: -1, Ts: []float64{0, 0.2, 0.4}, OrderParameters: []float64{1, 0.5, 0.6}},
		{Theta: 0.4, EnergyDensity: -0.5, Ts: []float64{0, 0.2, 0.4}, OrderParameters: []float64{0.8, 0.4, 0.3}},
	}
	for i := range trajectories {
		trajectories[i].TimeAverages = timeAverages(trajectories[i].OrderParameters)
	}
	if c := trajectories[0].Converged(); c != 0.6 {
		t.Fatalf("%f, expected %f", c, 0.6)
	}

	figures := circuitFigures(cfg, trajectories)
	require.Len(t, figures, 2)
	require.Equal(t, nameCircuitTrajectories, figures[0].name)
	lines := figures[0].fig.Series
	require.Len(t, lines, 2)
	if diff := cmp.Diff([]float64{1, 0.75, 0.7}, lines[0].Y, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("%s", diff)
	}
	if diff := cmp.Diff([]float64{0.8, 0.6, 0.5}, lines[1].Y, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("%s", diff)
	}

	require.Equal(t, nameCircuitConverged, figures[1].name)
	scatter := figures[1].fig.Series[0]
	require.Equal(t, []float64{-1, -0.5}, scatter.X)
	require.Equal(t, []float64{0.6, 0.3}, scatter.Y)
}

func TestCircuitSweepCancelled(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CircuitSweep(ctx, cfg)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEDSweep(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	r, err := EDSweep(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 6, r.N)
	require.Len(t, r.Points, cfg.ED.Points)
	first, last := r.Points[0], r.Points[len(r.Points)-1]
	require.Less(t, first.EnergyDensity, last.EnergyDensity)
	require.Greater(t, first.Value, last.Value)
	requireFile(t, r.Plot)
	requireFile(t, filepath.Join(cfg.Dir, fnameEDSweep))

	h, err := mat.ReadCOO(filepath.Join(cfg.Dir, dirHamiltonian))
	require.NoError(t, err)
	require.Equal(t, 1<<6, h.Rows())
}

func TestCheckSpectrum(t *testing.T) {
	t.Parallel()
	h := mat.M([][]complex128{
		{1, 2},
		{2, 1},
	})
	// Gerschgorin bounds are [-1, 3].
	require.NoError(t, checkSpectrum(h, []mat.ValVec{{Val: -1}, {Val: 3}}))
	require.Error(t, checkSpectrum(h, []mat.ValVec{{Val: -1.5}, {Val: 3}}))
	require.Error(t, checkSpectrum(h, []mat.ValVec{{Val: -1}, {Val: 3.5}}))
	require.Error(t, checkSpectrum(h, nil))

	lat, err := lattice.Square(2, 2, lattice.Open)
	require.NoError(t, err)
	_, vvs, err := diagonalize(lat, qxy.NewBasis(4))
	require.NoError(t, err)
	require.Len(t, vvs, 16)
}

func TestTiming(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.TMax = 3
	ctx := context.Background()

	ed, err := EDTiming(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, []int{6, 20, 126}, []int{ed.Timings[0].Dim, ed.Timings[1].Dim, ed.Timings[2].Dim})
	requireFile(t, ed.Plot)

	circuits, err := CircuitTiming(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, circuits.Timings, 3)
	require.Equal(t, 512, circuits.Timings[2].Dim)
	requireFile(t, circuits.Plot)
	requireFile(t, filepath.Join(cfg.Dir, nameCircuitTiming+".json"))
}

func TestFitExponential(t *testing.T) {
	t.Parallel()
	timings := make([]Timing, 0)
	for _, n := range []int{4, 8, 12, 16} {
		timings = append(timings, Timing{N: n, Seconds: math.Pow(10, -3+0.5*float64(n))})
	}
	fit, err := fitExponential(timings)
	require.NoError(t, err)
	require.InDelta(t, -3, fit.Intercept, 1e-9)
	require.InDelta(t, 0.5, fit.Slope, 1e-9)
	require.InDelta(t, 6, fit.Size(1), 1e-9)
	require.InDelta(t, 0.1, fit.Seconds(4), 1e-9)

	_, err = fitExponential(timings[:1])
	require.Error(t, err)
}

func TestTimeAverages(t *testing.T) {
	t.Parallel()
	if diff := cmp.Diff([]float64{1, 1.5, 2, 2.5}, timeAverages([]float64{1, 2, 3, 4})); diff != "" {
		t.Fatalf("%s", diff)
	}
}

func TestLattice(t *testing.T) {
	t.Parallel()
	var b bytes.Buffer
	require.NoError(t, Lattice(&b, LatticeConfig{Kind: "square", Lx: 2, Ly: 2, BC: "open"}))
	expected := "Coordinate to qubit mapping is [[0 0 0]->0 [0 1 0]->1 [1 0 0]->2 [1 1 0]->3]\n" +
		"Parallelized qubit couplings are [[0 2] [1 3] [0 1] [2 3]]\n"
	require.Equal(t, expected, b.String())

	require.Error(t, Lattice(&b, LatticeConfig{Kind: "triangular", Lx: 2, Ly: 2, BC: "open"}))
	require.Error(t, Lattice(&b, LatticeConfig{Kind: "square", Lx: 2, Ly: 2, BC: "twisted"}))
}

func TestGround(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	g, err := Ground(context.Background(), cfg)
	require.NoError(t, err)
	require.InDelta(t, -4.4721, g.Energy, 1e-3)

	b, err := os.ReadFile(filepath.Join(cfg.Dir, "ground_L4_D4.json"))
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, sonic.Unmarshal(b, &fields))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	require.ElementsMatch(t, []string{"L", "bond_dim", "energy", "order_parameter"}, keys)
	require.InDelta(t, g.Energy, fields["energy"], 1e-12)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	fpath := filepath.Join(dir, "qxy.yaml")
	yml := `
dir: runs/test
lattice:
  kind: honeycomb
  lx: 2
  ly: 2
  bc: periodic
thetas: [0.1]
shots: 50
ed:
  points: 5
`
	require.NoError(t, os.WriteFile(fpath, []byte(yml), 0644))
	cfg, err := LoadConfig(fpath)
	require.NoError(t, err)

	expected := Default()
	expected.Dir = "runs/test"
	expected.Lattice = LatticeConfig{Kind: "honeycomb", Lx: 2, Ly: 2, BC: "periodic"}
	expected.Thetas = []float64{0.1}
	expected.Shots = 50
	expected.ED.Points = 5
	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Fatalf("%s", diff)
	}
	require.Equal(t, filepath.Join("runs/test", "qxy.db"), cfg.StoreDSN())

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, Default().Machine, cfg.Machine)

	for _, bad := range []string{"tmax: 1", "shots: 0", "lattice: {kind: cube}", "dt: [", "workers: 0"} {
		require.NoError(t, os.WriteFile(fpath, []byte(bad), 0644))
		_, err := LoadConfig(fpath)
		require.Error(t, err, bad)
	}
}
