package experiment

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/fumin/qxy/plot"
)

const (
	secondsPerYear = 3.156e7
	ageOfUniverse  = 13.8e9 * secondsPerYear
)

// Timing is the wall time of a computation on a lattice.
type Timing struct {
	Lx int `json:"Lx"`
	Ly int `json:"Ly"`
	// N is the number of spins.
	N int `json:"N"`
	// Dim is the dimension of the Hilbert space the computation works in.
	Dim     int     `json:"dim"`
	Seconds float64 `json:"seconds"`
}

// ExpFit is the least squares fit log10(seconds) = Intercept + Slope N.
type ExpFit struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
}

func fitExponential(timings []Timing) (ExpFit, error) {
	ns := make([]float64, 0, len(timings))
	logs := make([]float64, 0, len(timings))
	for _, t := range timings {
		if t.Seconds <= 0 {
			continue
		}
		ns = append(ns, float64(t.N))
		logs = append(logs, math.Log10(t.Seconds))
	}
	if len(ns) < 2 {
		return ExpFit{}, errors.Errorf("%d timings", len(ns))
	}
	alpha, beta := stat.LinearRegression(ns, logs, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return ExpFit{}, errors.Errorf("degenerate fit %v %v", ns, logs)
	}
	return ExpFit{Intercept: alpha, Slope: beta}, nil
}

// Seconds returns the predicted time for n spins.
func (f ExpFit) Seconds(n float64) float64 {
	return math.Pow(10, f.Intercept+f.Slope*n)
}

// Size returns the number of spins that takes the given time.
func (f ExpFit) Size(seconds float64) float64 {
	return (math.Log10(seconds) - f.Intercept) / f.Slope
}

// TimingReport is the result of a timing step.
type TimingReport struct {
	Timings []Timing `json:"timings"`
	Fit     ExpFit   `json:"fit"`
	// YearSize is the number of spins that takes a year, or zero if the time does not grow with N.
	YearSize float64 `json:"year_size"`
	// UniverseSize is the number of spins that takes the age of the universe, or zero if the time does not grow with N.
	UniverseSize float64 `json:"universe_size"`
	Plot         string  `json:"plot"`
}

func newTimingReport(dir, name, title string, timings []Timing) (TimingReport, error) {
	fit, err := fitExponential(timings)
	if err != nil {
		return TimingReport{}, errors.Wrap(err, "")
	}
	r := TimingReport{Timings: timings, Fit: fit}
	if fit.Slope > 0 {
		r.YearSize, r.UniverseSize = fit.Size(secondsPerYear), fit.Size(ageOfUniverse)
	}

	ns := make([]float64, 0, len(timings))
	secs := make([]float64, 0, len(timings))
	for _, t := range timings {
		if t.Seconds > 0 {
			ns = append(ns, float64(t.N))
			secs = append(secs, t.Seconds)
		}
	}
	n0 := ns[0]
	n1 := n0 + 1
	if fit.Slope > 0 {
		n1 = math.Max(ns[len(ns)-1], math.Min(r.UniverseSize, 200))
	}
	fitN := []float64{n0, n1}
	fitT := []float64{fit.Seconds(n0), fit.Seconds(n1)}
	fig := plot.SemilogY(title, "N", "seconds",
		plot.Scatter("measured", ns, secs),
		plot.Lines(fmt.Sprintf("fit 10^(%.2f N %+.2f)", fit.Slope, fit.Intercept), fitN, fitT),
		plot.HLine("1 year", secondsPerYear, n0, n1),
		plot.HLine("age of the universe", ageOfUniverse, n0, n1),
	)
	r.Plot, err = plot.Save(dir, name, fig)
	if err != nil {
		return TimingReport{}, errors.Wrap(err, "")
	}
	if err := writeJSON(dir, name+".json", r); err != nil {
		return TimingReport{}, errors.Wrap(err, "")
	}
	return r, nil
}

// writeJSON writes v to dir/name.
func writeJSON(dir, name string, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(filepath.Join(dir, name), b, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
