package qxy

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/pkg/errors"
)

// Counts maps measured bitstrings, qubit 0 first, to their frequencies.
type Counts map[string]int

// Shots returns the total number of shots.
func (c Counts) Shots() int {
	var n int
	for _, f := range c {
		n += f
	}
	return n
}

// magnetization returns the mean spin (1/N) Σ (1-2b) of a bitstring.
func magnetization(bitstring string) (float64, error) {
	if len(bitstring) == 0 {
		return 0, errors.Errorf("empty bitstring")
	}
	var s int
	for _, b := range []byte(bitstring) {
		switch b {
		case '0':
			s++
		case '1':
			s--
		default:
			return 0, errors.Errorf("%q", bitstring)
		}
	}
	return float64(s) / float64(len(bitstring)), nil
}

// Moment returns the mean of s^k, where s is the magnetization per spin of each shot, and its standard error.
// The standard error is zero for a single shot.
func Moment(counts Counts, k int) (float64, float64, error) {
	// Iterate in a fixed order so that results are reproducible to the last bit.
	bitstrings := slices.Sorted(maps.Keys(counts))
	sk := make([]float64, len(bitstrings))
	var mean float64
	var shots int
	for i, bs := range bitstrings {
		f := counts[bs]
		if f < 0 {
			return 0, 0, errors.Errorf("%q %d", bs, f)
		}
		s, err := magnetization(bs)
		if err != nil {
			return 0, 0, errors.Wrap(err, "")
		}
		sk[i] = math.Pow(s, float64(k))
		mean += sk[i] * float64(f)
		shots += f
	}
	if shots == 0 {
		return 0, 0, errors.Errorf("no shots")
	}
	mean /= float64(shots)
	if shots == 1 {
		return mean, 0, nil
	}

	var variance float64
	for i, bs := range bitstrings {
		d := sk[i] - mean
		variance += d * d * float64(counts[bs])
	}
	stdev := math.Sqrt(variance / float64(shots-1))
	return mean, stdev / math.Sqrt(float64(shots)), nil
}

// OrderParameterFromCounts returns <SX^2> + <SY^2> from shots measured in the X and Y bases, and its error bar.
// The error bar is the sum of the two standard errors.
func OrderParameterFromCounts(x, y Counts) (float64, float64, error) {
	sx2, ex, err := Moment(x, 2)
	if err != nil {
		return 0, 0, errors.Wrap(err, "X")
	}
	sy2, ey, err := Moment(y, 2)
	if err != nil {
		return 0, 0, errors.Wrap(err, "Y")
	}
	return sx2 + sy2, ex + ey, nil
}

// MeasurementID names the circuit measuring the order parameter at an initial angle, number of Trotter steps and basis.
func MeasurementID(theta float64, nSteps int, basis string) string {
	return fmt.Sprintf("XY_theta=%.2f_n=%d_basis=%s", theta, nSteps, basis)
}
