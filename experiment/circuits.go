package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fumin/qxy/circuit"
	"github.com/fumin/qxy/lattice"
	"github.com/fumin/qxy/plot"
	"github.com/fumin/qxy/statevector"
	"github.com/fumin/qxy/util"
)

const (
	nameCircuitTrajectories = "03a_circuit_time_average"
	nameCircuitConverged    = "03b_circuit_order_parameter"
	nameCircuitTiming       = "04a_circuit_timing"
	fnameCircuitSweep       = "03_circuit_sweep.json"
)

// Trajectory is the order parameter over time after a quench from a product state.
type Trajectory struct {
	Theta         float64 `json:"theta"`
	Energy        float64 `json:"energy"`
	EnergyDensity float64 `json:"energy_density"`
	// Ts are the times of OrderParameters, starting from zero.
	Ts              []float64 `json:"ts"`
	OrderParameters []float64 `json:"order_parameters"`
	// TimeAverages are the running means of OrderParameters.
	TimeAverages []float64 `json:"time_averages"`
}

// Converged returns the order parameter after the last step.
func (t Trajectory) Converged() float64 {
	return t.OrderParameters[len(t.OrderParameters)-1]
}

// CircuitReport is the result of the circuit sweep.
type CircuitReport struct {
	Lattice      LatticeConfig `json:"lattice"`
	Dt           float64       `json:"dt"`
	Trajectories []Trajectory  `json:"trajectories"`
	Plots        []string      `json:"plots"`
}

// evolve simulates the initial state of angle theta under steps Trotter steps of size dt.
func evolve(ctx context.Context, couplings [][2]int, n int, theta, dt float64, steps int) (Trajectory, error) {
	s, err := statevector.Run(circuit.InitialState(n, theta))
	if err != nil {
		return Trajectory{}, errors.Wrap(err, "")
	}
	step, err := circuit.XYStep(n, dt, couplings, 1)
	if err != nil {
		return Trajectory{}, errors.Wrap(err, "")
	}

	energy := s.Energy(couplings, J)
	tr := Trajectory{Theta: theta, Energy: energy, EnergyDensity: energy / float64(n)}
	tr.Ts = append(tr.Ts, 0)
	tr.OrderParameters = append(tr.OrderParameters, s.OrderParameter())
	throttler := util.NewSkipThrottler(10 * time.Second)
	for i := 1; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return Trajectory{}, errors.Wrap(err, "")
		}
		if err := s.Apply(step); err != nil {
			return Trajectory{}, errors.Wrap(err, "")
		}
		tr.Ts = append(tr.Ts, float64(i)*dt)
		tr.OrderParameters = append(tr.OrderParameters, s.OrderParameter())
		if ok, skipped := throttler.Take(); ok {
			zap.L().Debug("step", zap.Float64("theta", theta), zap.Int("step", i), zap.Int("skipped", skipped))
		}
	}
	tr.TimeAverages = timeAverages(tr.OrderParameters)
	return tr, nil
}

// timeAverages returns the cumulative sums of vs divided by the number of terms.
func timeAverages(vs []float64) []float64 {
	avgs := make([]float64, len(vs))
	var sum float64
	for i, v := range vs {
		sum += v
		avgs[i] = sum / float64(i+1)
	}
	return avgs
}

// sweep evolves all thetas concurrently.
func sweep(ctx context.Context, lc LatticeConfig, thetas []float64, dt float64, steps, workers int) ([]Trajectory, error) {
	lat, err := lc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	couplings := lattice.Couplings(lat)
	n := lattice.NumSites(lat)

	trajectories := make([]Trajectory, len(thetas))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, theta := range thetas {
		g.Go(func() error {
			tr, err := evolve(ctx, couplings, n, theta, dt, steps)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("theta %f", theta))
			}
			trajectories[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trajectories, nil
}

// CircuitSweep simulates Trotterized quenches from product states of several energies,
// and reports the order parameter over time and its time average.
func CircuitSweep(ctx context.Context, cfg Config) (CircuitReport, error) {
	trajectories, err := sweep(ctx, cfg.Circuits.Lattice, cfg.Circuits.Thetas, cfg.Dt, cfg.TMax, cfg.Workers)
	if err != nil {
		return CircuitReport{}, errors.Wrap(err, "")
	}
	r := CircuitReport{Lattice: cfg.Circuits.Lattice, Dt: cfg.Dt, Trajectories: trajectories}
	for _, tr := range trajectories {
		zap.L().Info("converged", zap.Float64("theta", tr.Theta), zap.Float64("energy density", tr.EnergyDensity), zap.Float64("order parameter", tr.Converged()))
	}

	for _, f := range circuitFigures(cfg, trajectories) {
		fpath, err := plot.Save(cfg.Dir, f.name, f.fig)
		if err != nil {
			return CircuitReport{}, errors.Wrap(err, "")
		}
		r.Plots = append(r.Plots, fpath)
	}
	if err := writeJSON(cfg.Dir, fnameCircuitSweep, r); err != nil {
		return CircuitReport{}, errors.Wrap(err, "")
	}
	return r, nil
}

type namedFigure struct {
	name string
	fig  plot.Figure
}

// circuitFigures returns the time averages of each trajectory,
// and the order parameter after the last step against the energy density.
func circuitFigures(cfg Config, trajectories []Trajectory) []namedFigure {
	lines := make([]plot.Series, 0, len(trajectories))
	xs := make([]float64, 0, len(trajectories))
	ys := make([]float64, 0, len(trajectories))
	for _, tr := range trajectories {
		lines = append(lines, plot.Lines(fmt.Sprintf("theta=%.2f", tr.Theta), tr.Ts, tr.TimeAverages))
		xs = append(xs, tr.EnergyDensity)
		ys = append(ys, tr.Converged())
	}
	title := fmt.Sprintf("%dx%d %s, dt=%.2f", cfg.Circuits.Lattice.Lx, cfg.Circuits.Lattice.Ly, cfg.Circuits.Lattice.BC, cfg.Dt)
	return []namedFigure{
		{name: nameCircuitTrajectories, fig: plot.Figure{Title: title, XLabel: "t", YLabel: "time averaged <Sx^2 + Sy^2>", Series: lines}},
		{name: nameCircuitConverged, fig: plot.Figure{Title: title, XLabel: energyDensityX, YLabel: "<Sx^2 + Sy^2>", Series: []plot.Series{plot.Scatter("", xs, ys)}}},
	}
}

// CircuitTiming measures the time of a circuit sweep of one initial state on periodic square lattices.
func CircuitTiming(ctx context.Context, cfg Config) (TimingReport, error) {
	timings := make([]Timing, 0, len(cfg.Circuits.TimingSizes))
	for _, size := range cfg.Circuits.TimingSizes {
		lc := LatticeConfig{Kind: "square", Lx: size[0], Ly: size[1], BC: lattice.Periodic.String()}
		start := time.Now()
		if _, err := sweep(ctx, lc, []float64{0}, cfg.Dt, cfg.TMax, 1); err != nil {
			return TimingReport{}, errors.Wrap(err, fmt.Sprintf("%v", size))
		}
		n := size[0] * size[1]
		t := Timing{Lx: size[0], Ly: size[1], N: n, Dim: 1 << n, Seconds: time.Since(start).Seconds()}
		zap.L().Info("simulated", zap.Ints("size", size[:]), zap.Float64("seconds", t.Seconds))
		timings = append(timings, t)
	}

	r, err := newTimingReport(cfg.Dir, nameCircuitTiming, "Statevector simulation time", timings)
	if err != nil {
		return TimingReport{}, errors.Wrap(err, "")
	}
	return r, nil
}
