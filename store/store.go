// Package store persists job handles between submission and retrieval, and the datasets computed from their results.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/fumin/qxy/backend"
)

// ErrNotFound is returned for missing records.
var ErrNotFound = errors.New("not found")

// HandleRecord is a submitted measurement circuit.
type HandleRecord struct {
	// ID is the measurement ID, such as XY_theta=0.40_n=3_basis=X.
	ID      string         `json:"id"`
	Lx      int            `json:"Lx"`
	Ly      int            `json:"Ly"`
	NSteps  int            `json:"n_steps"`
	Dt      float64        `json:"dt"`
	Theta   float64        `json:"theta"`
	Basis   string         `json:"basis"`
	Handle  backend.Handle `json:"handle"`
	Created time.Time      `json:"created"`
}

// Dataset is the order parameter over time of a quench from one initial state.
type Dataset struct {
	Theta                   float64   `json:"theta"`
	Lx                      int       `json:"Lx"`
	Ly                      int       `json:"Ly"`
	Dt                      float64   `json:"dt"`
	Ts                      []float64 `json:"ts"`
	OrderParameters         []float64 `json:"order_parameters"`
	OrderParameterErrorbars []float64 `json:"order_parameter_errorbars"`
}

// ID names a dataset by its initial state.
func (d Dataset) ID() string {
	return DatasetID(d.Theta)
}

// DatasetID returns the name of the dataset of an initial state.
func DatasetID(theta float64) string {
	return fmt.Sprintf("XY_theta=%.2f", theta)
}

func (d Dataset) validate() error {
	if len(d.Ts) != len(d.OrderParameters) || len(d.Ts) != len(d.OrderParameterErrorbars) {
		return errors.Errorf("%s lengths %d %d %d", d.ID(), len(d.Ts), len(d.OrderParameters), len(d.OrderParameterErrorbars))
	}
	return nil
}

// Store persists handles and datasets.
type Store interface {
	// PutHandle inserts or replaces a handle record.
	PutHandle(ctx context.Context, r HandleRecord) error
	// GetHandle returns ErrNotFound if there is no record with the id.
	GetHandle(ctx context.Context, id string) (HandleRecord, error)
	// ListHandles returns all records sorted by ID.
	ListHandles(ctx context.Context) ([]HandleRecord, error)

	PutDataset(ctx context.Context, d Dataset) error
	GetDataset(ctx context.Context, theta float64) (Dataset, error)
	// ListDatasets returns all datasets sorted by theta.
	ListDatasets(ctx context.Context) ([]Dataset, error)

	Close() error
}

// Open opens a store.
// A DSN starting with redis:// opens a Redis store, and anything else is the path of a SQLite database.
func Open(dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "redis://") || strings.HasPrefix(dsn, "rediss://") {
		s, err := OpenRedis(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		return s, nil
	}
	s, err := OpenSQLite(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

// WriteDatasetJSON writes d as dir/XY_theta=<theta>.json, and returns the path.
func WriteDatasetJSON(dir string, d Dataset) (string, error) {
	if err := d.validate(); err != nil {
		return "", errors.Wrap(err, "")
	}
	b, err := sonic.ConfigStd.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "")
	}
	fpath := filepath.Join(dir, d.ID()+".json")
	if err := os.WriteFile(fpath, b, 0644); err != nil {
		return "", errors.Wrap(err, "")
	}
	return fpath, nil
}

// ReadDatasetJSON reads a file written by WriteDatasetJSON.
func ReadDatasetJSON(fpath string) (Dataset, error) {
	b, err := os.ReadFile(fpath)
	if err != nil {
		return Dataset{}, errors.Wrap(err, "")
	}
	var d Dataset
	if err := sonic.Unmarshal(b, &d); err != nil {
		return Dataset{}, errors.Wrap(err, fpath)
	}
	if err := d.validate(); err != nil {
		return Dataset{}, errors.Wrap(err, fpath)
	}
	return d, nil
}
