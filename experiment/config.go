// Package experiment runs the steps of the microcanonical XY study:
// exact diagonalization, circuit simulation, submission to a backend, retrieval and plotting.
package experiment

import (
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/fumin/qxy/lattice"
)

// J is the coupling of the XY Hamiltonian in all experiments.
const J = -1.0

// Bases are the measurement bases of the order parameter.
var Bases = []string{"X", "Y"}

// LatticeConfig describes a lattice.
type LatticeConfig struct {
	Kind string `yaml:"kind"`
	Lx   int    `yaml:"lx"`
	Ly   int    `yaml:"ly"`
	BC   string `yaml:"bc"`
}

// Build returns the lattice.
func (c LatticeConfig) Build() (lattice.Lattice, error) {
	bc, err := lattice.ParseBC(c.BC)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	lat, err := lattice.New(c.Kind, c.Lx, c.Ly, bc)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return lat, nil
}

// EDConfig configures the exact diagonalization steps.
type EDConfig struct {
	Lattice LatticeConfig `yaml:"lattice"`
	// Points is the number of energies in the sweep.
	Points int `yaml:"points"`
	// VarianceFactor times the number of spins is the variance of the energy filter.
	VarianceFactor float64  `yaml:"variance_factor"`
	TimingSizes    [][2]int `yaml:"timing_sizes"`
}

// CircuitsConfig configures the circuit simulation steps.
type CircuitsConfig struct {
	Lattice     LatticeConfig `yaml:"lattice"`
	Thetas      []float64     `yaml:"thetas"`
	TimingSizes [][2]int      `yaml:"timing_sizes"`
}

// GroundConfig configures the matrix product state reference.
type GroundConfig struct {
	L       int `yaml:"l"`
	BondDim int `yaml:"bond_dim"`
}

// Config holds the parameters of all steps.
type Config struct {
	// Dir is the run directory where results and plots are written.
	Dir string `yaml:"dir"`

	// Lattice is the lattice of the submitted circuits.
	Lattice LatticeConfig `yaml:"lattice"`
	Dt      float64       `yaml:"dt"`
	// TMax bounds the number of Trotter steps, which runs over [1, TMax).
	TMax   int       `yaml:"tmax"`
	Thetas []float64 `yaml:"thetas"`
	Shots  int       `yaml:"shots"`

	Machine           string `yaml:"machine"`
	Project           string `yaml:"project"`
	OptimisationLevel int    `yaml:"optimisation_level"`
	// BackendURL is the address of a remote backend. If empty, an in-process emulator runs the jobs.
	BackendURL string `yaml:"backend_url"`
	// Store is the DSN of the handle store. If empty, a SQLite database in Dir is used.
	Store string `yaml:"store"`

	ED       EDConfig       `yaml:"ed"`
	Circuits CircuitsConfig `yaml:"circuits"`
	Ground   GroundConfig   `yaml:"ground"`

	// Workers bounds the number of concurrent simulations and retrievals.
	Workers int    `yaml:"workers"`
	Seed    uint64 `yaml:"seed"`
}

// Default returns the configuration of the original study.
func Default() Config {
	return Config{
		Dir:               filepath.Join("runs", "qxy"),
		Lattice:           LatticeConfig{Kind: "square", Lx: 4, Ly: 4, BC: "periodic"},
		Dt:                0.2,
		TMax:              20,
		Thetas:            []float64{0, 0.4, 0.6},
		Shots:             100,
		Machine:           "H1-1E",
		Project:           "Microcanonical ExpVal Project",
		OptimisationLevel: 1,
		ED: EDConfig{
			Lattice:        LatticeConfig{Kind: "square", Lx: 3, Ly: 3, BC: "open"},
			Points:         30,
			VarianceFactor: 4.0 / 3,
			TimingSizes:    [][2]int{{2, 2}, {2, 3}, {3, 3}, {3, 4}},
		},
		Circuits: CircuitsConfig{
			Lattice:     LatticeConfig{Kind: "square", Lx: 4, Ly: 4, BC: "periodic"},
			Thetas:      floats.Span(make([]float64, 5), 0, math.Pi/8),
			TimingSizes: [][2]int{{2, 2}, {2, 3}, {3, 3}, {3, 4}, {4, 4}},
		},
		Ground:  GroundConfig{L: 16, BondDim: 16},
		Workers: 4,
		Seed:    1,
	}
}

// StoreDSN returns the DSN of the handle store.
func (c Config) StoreDSN() string {
	if c.Store != "" {
		return c.Store
	}
	return filepath.Join(c.Dir, "qxy.db")
}

// DataDir is where datasets are exported.
func (c Config) DataDir() string {
	return filepath.Join(c.Dir, "data")
}

// Validate checks the parameters.
func (c Config) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Errorf("empty dir")
	case c.Dt <= 0:
		return errors.Errorf("dt %f", c.Dt)
	case c.TMax < 2:
		return errors.Errorf("tmax %d", c.TMax)
	case c.Shots < 1:
		return errors.Errorf("shots %d", c.Shots)
	case c.ED.Points < 1:
		return errors.Errorf("points %d", c.ED.Points)
	case c.ED.VarianceFactor <= 0:
		return errors.Errorf("variance factor %f", c.ED.VarianceFactor)
	case c.Workers < 1:
		return errors.Errorf("workers %d", c.Workers)
	}
	for _, lc := range []LatticeConfig{c.Lattice, c.ED.Lattice, c.Circuits.Lattice} {
		if _, err := lc.Build(); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// LoadConfig reads a YAML file over the defaults.
// Fields missing in the file keep their default values.
func LoadConfig(fpath string) (Config, error) {
	cfg := Default()
	if fpath == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(fpath)
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, fpath)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, fpath)
	}
	return cfg, nil
}
