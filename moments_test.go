package qxy

import (
	"fmt"
	"math"
	"testing"
)

func TestMoment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		counts Counts
		k      int
		mean   float64
		stderr float64
	}{
		{counts: Counts{"00": 1, "11": 1}, k: 2, mean: 1, stderr: 0},
		{counts: Counts{"00": 1, "11": 1}, k: 1, mean: 0, stderr: 1},
		{counts: Counts{"01": 2, "00": 2}, k: 2, mean: 0.5, stderr: math.Sqrt(1.0/3) / 2},
		{counts: Counts{"0000": 3, "1111": 1}, k: 1, mean: 0.5, stderr: 0.5},
		{counts: Counts{"010": 1}, k: 2, mean: 1.0 / 9, stderr: 0},
		{counts: Counts{"010": 1, "111": 0}, k: 2, mean: 1.0 / 9, stderr: 0},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %d", test.counts, test.k), func(t *testing.T) {
			t.Parallel()
			mean, stderr, err := Moment(test.counts, test.k)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(mean-test.mean) > 1e-12 {
				t.Fatalf("%f, expected %f", mean, test.mean)
			}
			if math.Abs(stderr-test.stderr) > 1e-12 {
				t.Fatalf("%f, expected %f", stderr, test.stderr)
			}
		})
	}
}

func TestMomentErrors(t *testing.T) {
	t.Parallel()
	tests := []Counts{
		{},
		{"01": 0},
		{"0a": 1},
		{"": 1},
		{"01": -1},
	}
	for _, test := range tests {
		if _, _, err := Moment(test, 2); err == nil {
			t.Fatalf("%v expected error", test)
		}
	}
}

func TestOrderParameterFromCounts(t *testing.T) {
	t.Parallel()
	x := Counts{"0000": 10}
	y := Counts{"0011": 5, "0101": 5}
	val, errbar, err := OrderParameterFromCounts(x, y)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if val != 1 || errbar != 0 {
		t.Fatalf("%f %f", val, errbar)
	}

	if _, _, err := OrderParameterFromCounts(x, Counts{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMeasurementID(t *testing.T) {
	t.Parallel()
	if id := MeasurementID(0.5236, 3, "Y"); id != "XY_theta=0.52_n=3_basis=Y" {
		t.Fatalf("%s", id)
	}
}
