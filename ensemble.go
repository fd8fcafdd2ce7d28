package qxy

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fumin/qxy/mat"
)

// DefaultVariance returns the width squared of the energy filter used for n spins.
func DefaultVariance(n int) float64 {
	return float64(n) * 4 / 3
}

// Microcanonical returns the weights of the eigenstates in the density matrix
// rho = Σ_k w_k |v_k><v_k|, with w_k proportional to exp(-(E_k-e0)^2/variance) and Σ_k w_k = 1.
func Microcanonical(vvs []mat.ValVec, e0, variance float64) ([]float64, error) {
	if len(vvs) == 0 {
		return nil, errors.Errorf("no eigenstates")
	}
	if !(variance > 0) {
		return nil, errors.Errorf("%f", variance)
	}

	// Shift log weights by their maximum, so that centers far outside the spectrum do not underflow.
	logw := make([]float64, len(vvs))
	for k, vv := range vvs {
		d := vv.Val - e0
		logw[k] = -d * d / variance
	}
	shift := floats.Max(logw)
	weights := make([]float64, len(vvs))
	for k, l := range logw {
		weights[k] = math.Exp(l - shift)
	}
	sum := floats.Sum(weights)
	if !(sum > 0) || math.IsInf(sum, 0) {
		return nil, errors.Errorf("%f %f", e0, sum)
	}
	floats.Scale(1/sum, weights)
	return weights, nil
}

// Diagonal returns <v_k|op|v_k> for each eigenstate.
func Diagonal(vvs []mat.ValVec, op *mat.COO) []float64 {
	diag := make([]float64, len(vvs))
	for k, vv := range vvs {
		diag[k] = op.Expectation(vv.Vec)
	}
	return diag
}

// ExpectationValue returns Tr(op rho), where rho is given by its weights on the eigenstates.
func ExpectationValue(weights []float64, vvs []mat.ValVec, op *mat.COO) float64 {
	return floats.Dot(weights, Diagonal(vvs, op))
}

// EnsemblePoint is a microcanonical expectation value at an energy.
type EnsemblePoint struct {
	Energy        float64
	EnergyDensity float64
	Value         float64
}

// EnergySweep evaluates the microcanonical expectation value of op at points energies evenly spaced
// between the lowest and highest eigenvalue.
func EnergySweep(vvs []mat.ValVec, op *mat.COO, n, points int, variance float64) ([]EnsemblePoint, error) {
	if len(vvs) == 0 {
		return nil, errors.Errorf("no eigenstates")
	}
	if points < 1 {
		return nil, errors.Errorf("%d", points)
	}
	lo, hi := vvs[0].Val, vvs[len(vvs)-1].Val
	centers := []float64{lo}
	if points > 1 {
		centers = floats.Span(make([]float64, points), lo, hi)
	}

	diag := Diagonal(vvs, op)
	sweep := make([]EnsemblePoint, 0, points)
	for _, e0 := range centers {
		weights, err := Microcanonical(vvs, e0, variance)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		p := EnsemblePoint{Energy: e0, EnergyDensity: e0 / float64(n), Value: floats.Dot(weights, diag)}
		sweep = append(sweep, p)
	}
	return sweep, nil
}
