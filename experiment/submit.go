package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fumin/qxy"
	"github.com/fumin/qxy/backend"
	"github.com/fumin/qxy/circuit"
	"github.com/fumin/qxy/lattice"
	"github.com/fumin/qxy/store"
)

// SubmitReport counts the circuits of a submission.
type SubmitReport struct {
	Submitted int
	// Skipped circuits were submitted by an earlier run.
	Skipped int
}

// Submit sends the measurement circuits of every initial state and number of Trotter steps to a backend,
// and stores their handles.
// Circuits whose handles are already stored and known to the backend are skipped,
// so an interrupted submission can be resumed.
func Submit(ctx context.Context, cfg Config, b backend.Backend, ps backend.ProjectService, st store.Store) (SubmitReport, error) {
	project, err := backend.EnsureProject(ctx, ps, cfg.Project)
	if err != nil {
		return SubmitReport{}, errors.Wrap(err, "")
	}
	lat, err := cfg.Lattice.Build()
	if err != nil {
		return SubmitReport{}, errors.Wrap(err, "")
	}
	couplings := lattice.Couplings(lat)
	n := lattice.NumSites(lat)

	var r SubmitReport
	for _, theta := range cfg.Thetas {
		for nSteps := 1; nSteps < cfg.TMax; nSteps++ {
			evolved := circuit.InitialState(n, theta)
			step, err := circuit.XYStepMerged(n, cfg.Dt, couplings, nSteps)
			if err != nil {
				return r, errors.Wrap(err, "")
			}
			if err := evolved.Append(step); err != nil {
				return r, errors.Wrap(err, "")
			}

			for _, basis := range Bases {
				id := qxy.MeasurementID(theta, nSteps, basis)
				stored, err := submitted(ctx, b, st, id)
				if err != nil {
					return r, errors.Wrap(err, id)
				}
				if stored {
					r.Skipped++
					continue
				}

				h, err := submit(ctx, cfg, b, evolved, basis, id)
				if err != nil {
					return r, errors.Wrap(err, id)
				}
				rec := store.HandleRecord{
					ID: id, Lx: cfg.Lattice.Lx, Ly: cfg.Lattice.Ly, NSteps: nSteps, Dt: cfg.Dt,
					Theta: theta, Basis: basis, Handle: h, Created: time.Now().UTC(),
				}
				if err := st.PutHandle(ctx, rec); err != nil {
					return r, errors.Wrap(err, id)
				}
				r.Submitted++
			}
		}
	}
	zap.L().Info("submitted", zap.String("project", project.Name), zap.Int("submitted", r.Submitted), zap.Int("skipped", r.Skipped))
	return r, nil
}

// submitted reports whether the handle of id is stored and still known to b.
// Handles of jobs that b has lost, such as those of an emulator that has exited, are resubmitted.
func submitted(ctx context.Context, b backend.Backend, st store.Store, id string) (bool, error) {
	rec, err := st.GetHandle(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, errors.Wrap(err, "")
	}
	if _, err := b.Status(ctx, rec.Handle); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			zap.L().Info("resubmitting lost job", zap.String("id", id), zap.Stringer("handle", rec.Handle))
			return false, nil
		}
		return false, errors.Wrap(err, "")
	}
	return true, nil
}

func submit(ctx context.Context, cfg Config, b backend.Backend, evolved *circuit.Circuit, basis, id string) (backend.Handle, error) {
	c, err := circuit.Measurement(evolved, basis, id)
	if err != nil {
		return backend.Handle{}, errors.Wrap(err, "")
	}
	compiled, err := b.Compile(ctx, c, cfg.OptimisationLevel)
	if err != nil {
		return backend.Handle{}, errors.Wrap(err, "")
	}
	h, err := b.Process(ctx, compiled, cfg.Shots)
	if err != nil {
		return backend.Handle{}, errors.Wrap(err, "")
	}
	zap.L().Info("processed", zap.String("id", id), zap.Stringer("handle", h),
		zap.Int("gates", len(compiled.Gates)), zap.Int("depth", circuit.Depth(compiled)), zap.Int("two qubit", circuit.TwoQubitCount(compiled)))
	return h, nil
}

// Retrieve waits for the results of the submitted circuits, and computes the order parameter over time of each initial state.
// Datasets are saved to the store and exported as JSON.
func Retrieve(ctx context.Context, cfg Config, b backend.Backend, st store.Store) ([]store.Dataset, error) {
	datasets := make([]store.Dataset, 0, len(cfg.Thetas))
	for _, theta := range cfg.Thetas {
		d, err := retrieve(ctx, cfg, b, st, theta)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("theta %f", theta))
		}
		if err := st.PutDataset(ctx, d); err != nil {
			return nil, errors.Wrap(err, "")
		}
		fpath, err := store.WriteDatasetJSON(cfg.DataDir(), d)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		zap.L().Info("retrieved", zap.Float64("theta", theta), zap.String("path", fpath))
		datasets = append(datasets, d)
	}
	return datasets, nil
}

func retrieve(ctx context.Context, cfg Config, b backend.Backend, st store.Store, theta float64) (store.Dataset, error) {
	steps := cfg.TMax - 1
	// counts[nSteps-1][basis]
	counts := make([][]qxy.Counts, steps)
	for i := range counts {
		counts[i] = make([]qxy.Counts, len(Bases))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range steps {
		for j, basis := range Bases {
			id := qxy.MeasurementID(theta, i+1, basis)
			g.Go(func() error {
				rec, err := st.GetHandle(gctx, id)
				if err != nil {
					return errors.Wrap(err, "")
				}
				c, err := backend.Wait(gctx, b, rec.Handle, backend.DefaultPolicy())
				if err != nil {
					return errors.Wrap(err, id)
				}
				counts[i][j] = c
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return store.Dataset{}, err
	}

	d := store.Dataset{Theta: theta, Lx: cfg.Lattice.Lx, Ly: cfg.Lattice.Ly, Dt: cfg.Dt}
	for i, c := range counts {
		v, e, err := qxy.OrderParameterFromCounts(c[0], c[1])
		if err != nil {
			return store.Dataset{}, errors.Wrap(err, qxy.MeasurementID(theta, i+1, ""))
		}
		d.Ts = append(d.Ts, float64(i+1)*cfg.Dt)
		d.OrderParameters = append(d.OrderParameters, v)
		d.OrderParameterErrorbars = append(d.OrderParameterErrorbars, e)
	}
	return d, nil
}
