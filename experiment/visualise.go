package experiment

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"

	"github.com/fumin/qxy/lattice"
	"github.com/fumin/qxy/mps"
	"github.com/fumin/qxy/plot"
	"github.com/fumin/qxy/store"
)

const nameVisualise = "07_order_parameter_vs_time"

// Visualise plots the order parameter over time of every retrieved dataset.
// If the store holds no datasets, the JSON exports in the data directory are used.
func Visualise(ctx context.Context, cfg Config, st store.Store) (string, error) {
	datasets, err := st.ListDatasets(ctx)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	if len(datasets) == 0 {
		datasets, err = readDatasets(cfg.DataDir())
		if err != nil {
			return "", errors.Wrap(err, "")
		}
	}
	if len(datasets) == 0 {
		return "", errors.Errorf("no datasets in store or %s", cfg.DataDir())
	}

	series := make([]plot.Series, 0, len(datasets))
	for _, d := range datasets {
		series = append(series, plot.ErrorBars(fmt.Sprintf("theta=%.2f", d.Theta), d.Ts, d.OrderParameters, d.OrderParameterErrorbars))
	}
	d := datasets[0]
	fig := plot.Figure{
		Title:  fmt.Sprintf("%dx%d, dt=%.2f", d.Lx, d.Ly, d.Dt),
		XLabel: "t",
		YLabel: "<Sx^2> + <Sy^2>",
		Series: series,
	}
	fpath, err := plot.Save(cfg.Dir, nameVisualise, fig)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	return fpath, nil
}

func readDatasets(dir string) ([]store.Dataset, error) {
	fpaths, err := filepath.Glob(filepath.Join(dir, "XY_theta=*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	datasets := make([]store.Dataset, 0, len(fpaths))
	for _, fpath := range fpaths {
		d, err := store.ReadDatasetJSON(fpath)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		datasets = append(datasets, d)
	}
	slices.SortFunc(datasets, func(a, b store.Dataset) int {
		switch {
		case a.Theta < b.Theta:
			return -1
		case a.Theta > b.Theta:
			return 1
		}
		return 0
	})
	return datasets, nil
}

// Lattice prints the coordinate to qubit mapping and the couplings of a lattice.
func Lattice(w io.Writer, lc LatticeConfig) error {
	lat, err := lc.Build()
	if err != nil {
		return errors.Wrap(err, "")
	}
	if _, err := fmt.Fprintf(w, "Coordinate to qubit mapping is %v\n", lattice.CoordinateToQubit(lat)); err != nil {
		return errors.Wrap(err, "")
	}
	if _, err := fmt.Fprintf(w, "Parallelized qubit couplings are %v\n", lattice.Couplings(lat)); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Ground computes the ground state of an open XY chain with a matrix product state.
func Ground(ctx context.Context, cfg Config) (mps.Ground, error) {
	if err := ctx.Err(); err != nil {
		return mps.Ground{}, errors.Wrap(err, "")
	}
	g, err := mps.GroundState(cfg.Ground.L, cfg.Ground.BondDim, mps.DefaultSearchOptions())
	if err != nil {
		return mps.Ground{}, errors.Wrap(err, "")
	}
	if err := writeJSON(cfg.Dir, fmt.Sprintf("ground_L%d_D%d.json", g.L, g.BondDim), g); err != nil {
		return mps.Ground{}, errors.Wrap(err, "")
	}
	return g, nil
}
