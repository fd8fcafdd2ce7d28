package experiment

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fumin/qxy"
	"github.com/fumin/qxy/lattice"
	"github.com/fumin/qxy/mat"
	"github.com/fumin/qxy/plot"
)

const (
	nameEDSweep    = "01_ed_order_parameter"
	nameEDTiming   = "02_ed_timing"
	fnameEDSweep   = nameEDSweep + ".json"
	dirHamiltonian = "01_ed_hamiltonian"
	energyDensityX = "energy density E/N"

	// spectrumTol is the relative tolerance of the Gerschgorin check.
	spectrumTol = 1e-9
)

// EDReport is the microcanonical order parameter across the spectrum.
type EDReport struct {
	Lattice LatticeConfig       `json:"lattice"`
	N       int                 `json:"N"`
	Points  []qxy.EnsemblePoint `json:"points"`
	Plot    string              `json:"plot"`
}

// diagonalize returns the XY Hamiltonian of lat in basis b and its eigenpairs.
func diagonalize(lat lattice.Lattice, b *qxy.Basis) (*mat.COO, []mat.ValVec, error) {
	h, err := qxy.XYHamiltonian(b, lattice.Couplings(lat), J)
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	vvs, err := h.EigenSym()
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	if err := checkSpectrum(h, vvs); err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	return h, vvs, nil
}

// checkSpectrum checks that eigenvalues lie within the Gerschgorin bounds of h.
func checkSpectrum(h *mat.COO, vvs []mat.ValVec) error {
	if len(vvs) == 0 {
		return errors.Errorf("no eigenvalues")
	}
	lo, hi := h.Gerschgorin()
	tol := spectrumTol * max(1, math.Abs(lo), math.Abs(hi))
	e0, e1 := vvs[0].Val, vvs[len(vvs)-1].Val
	if e0 < lo-tol || e1 > hi+tol {
		return errors.Errorf("spectrum [%f, %f] outside Gerschgorin bounds [%f, %f]", e0, e1, lo, hi)
	}
	return nil
}

// EDSweep computes the microcanonical order parameter at energies spanning the spectrum, by full exact diagonalization.
func EDSweep(ctx context.Context, cfg Config) (EDReport, error) {
	lat, err := cfg.ED.Lattice.Build()
	if err != nil {
		return EDReport{}, errors.Wrap(err, "")
	}
	n := lattice.NumSites(lat)
	b := qxy.NewBasis(n)
	zap.L().Info("diagonalizing", zap.Int("N", n), zap.Int("dim", b.Len()))
	h, vvs, err := diagonalize(lat, b)
	if err != nil {
		return EDReport{}, errors.Wrap(err, "")
	}
	if err := ctx.Err(); err != nil {
		return EDReport{}, errors.Wrap(err, "")
	}
	hDir := filepath.Join(cfg.Dir, dirHamiltonian)
	if err := os.MkdirAll(hDir, os.ModePerm); err != nil {
		return EDReport{}, errors.Wrap(err, "")
	}
	if err := h.WriteCOO(hDir); err != nil {
		return EDReport{}, errors.Wrap(err, "")
	}

	op, err := qxy.OrderParameter(b)
	if err != nil {
		return EDReport{}, errors.Wrap(err, "")
	}
	points, err := qxy.EnergySweep(vvs, op, n, cfg.ED.Points, cfg.ED.VarianceFactor*float64(n))
	if err != nil {
		return EDReport{}, errors.Wrap(err, "")
	}
	r := EDReport{Lattice: cfg.ED.Lattice, N: n, Points: points}

	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		xs = append(xs, p.EnergyDensity)
		ys = append(ys, p.Value)
	}
	fig := plot.Figure{
		Title:  fmt.Sprintf("Microcanonical order parameter, %dx%d %s", cfg.ED.Lattice.Lx, cfg.ED.Lattice.Ly, cfg.ED.Lattice.BC),
		XLabel: energyDensityX,
		YLabel: "<Sx^2 + Sy^2>",
		Series: []plot.Series{plot.Scatter("", xs, ys)},
	}
	r.Plot, err = plot.Save(cfg.Dir, nameEDSweep, fig)
	if err != nil {
		return EDReport{}, errors.Wrap(err, "")
	}
	if err := writeJSON(cfg.Dir, fnameEDSweep, r); err != nil {
		return EDReport{}, errors.Wrap(err, "")
	}
	return r, nil
}

// EDTiming measures the time to diagonalize periodic square lattices in the zero magnetization sector.
// Sizes are run one after the other so that they do not compete for cores.
func EDTiming(ctx context.Context, cfg Config) (TimingReport, error) {
	timings := make([]Timing, 0, len(cfg.ED.TimingSizes))
	for _, size := range cfg.ED.TimingSizes {
		if err := ctx.Err(); err != nil {
			return TimingReport{}, errors.Wrap(err, "")
		}
		t, err := timeED(size)
		if err != nil {
			return TimingReport{}, errors.Wrap(err, fmt.Sprintf("%v", size))
		}
		zap.L().Info("diagonalized", zap.Ints("size", size[:]), zap.Int("dim", t.Dim), zap.Float64("seconds", t.Seconds))
		timings = append(timings, t)
	}

	r, err := newTimingReport(cfg.Dir, nameEDTiming, "Exact diagonalization time, Nup = N/2", timings)
	if err != nil {
		return TimingReport{}, errors.Wrap(err, "")
	}
	return r, nil
}

func timeED(size [2]int) (Timing, error) {
	lat, err := lattice.Square(size[0], size[1], lattice.Periodic)
	if err != nil {
		return Timing{}, errors.Wrap(err, "")
	}
	n := lattice.NumSites(lat)
	b, err := qxy.NewSectorBasis(n, n/2)
	if err != nil {
		return Timing{}, errors.Wrap(err, "")
	}

	start := time.Now()
	if _, _, err := diagonalize(lat, b); err != nil {
		return Timing{}, errors.Wrap(err, "")
	}
	return Timing{Lx: size[0], Ly: size[1], N: n, Dim: b.Len(), Seconds: time.Since(start).Seconds()}, nil
}
