package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableHandle  = "handle"
	tableDataset = "dataset"

	timeout = 3 * time.Second
)

// SQLite is a store in a SQLite database.
type SQLite struct {
	Path string
	db   *sql.DB
}

// OpenSQLite opens or creates a database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, path)
	}
	return &SQLite{Path: path, db: db}, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	sqlStrs := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, theta REAL, n_steps INTEGER, basis TEXT, record TEXT) STRICT`, tableHandle),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, theta REAL, record TEXT) STRICT`, tableDataset),
	}
	for _, sqlStr := range sqlStrs {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) PutHandle(ctx context.Context, r HandleRecord) error {
	if r.ID == "" {
		return errors.Errorf("empty id")
	}
	b, err := sonic.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, theta, n_steps, basis, record) VALUES (?, ?, ?, ?, ?)`, tableHandle)
	args := []any{r.ID, r.Theta, r.NSteps, r.Basis, string(b)}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}
	return nil
}

func (s *SQLite) GetHandle(ctx context.Context, id string) (HandleRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT record FROM %s WHERE id=?`, tableHandle)
	var record string
	err := s.db.QueryRowContext(ctx, sqlStr, id).Scan(&record)
	switch {
	case err == sql.ErrNoRows:
		return HandleRecord{}, errors.Wrap(ErrNotFound, id)
	case err != nil:
		return HandleRecord{}, errors.Wrap(err, id)
	}
	var r HandleRecord
	if err := sonic.UnmarshalString(record, &r); err != nil {
		return HandleRecord{}, errors.Wrap(err, record)
	}
	return r, nil
}

func (s *SQLite) ListHandles(ctx context.Context) ([]HandleRecord, error) {
	sqlStr := fmt.Sprintf(`SELECT record FROM %s ORDER BY id`, tableHandle)
	return list[HandleRecord](ctx, s.db, sqlStr)
}

func (s *SQLite) PutDataset(ctx context.Context, d Dataset) error {
	if err := d.validate(); err != nil {
		return errors.Wrap(err, "")
	}
	b, err := sonic.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, theta, record) VALUES (?, ?, ?)`, tableDataset)
	if _, err := s.db.ExecContext(ctx, sqlStr, d.ID(), d.Theta, string(b)); err != nil {
		return errors.Wrap(err, d.ID())
	}
	return nil
}

func (s *SQLite) GetDataset(ctx context.Context, theta float64) (Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	id := DatasetID(theta)
	sqlStr := fmt.Sprintf(`SELECT record FROM %s WHERE id=?`, tableDataset)
	var record string
	err := s.db.QueryRowContext(ctx, sqlStr, id).Scan(&record)
	switch {
	case err == sql.ErrNoRows:
		return Dataset{}, errors.Wrap(ErrNotFound, id)
	case err != nil:
		return Dataset{}, errors.Wrap(err, id)
	}
	var d Dataset
	if err := sonic.UnmarshalString(record, &d); err != nil {
		return Dataset{}, errors.Wrap(err, record)
	}
	return d, nil
}

func (s *SQLite) ListDatasets(ctx context.Context) ([]Dataset, error) {
	sqlStr := fmt.Sprintf(`SELECT record FROM %s ORDER BY theta`, tableDataset)
	return list[Dataset](ctx, s.db, sqlStr)
}

func list[T any](ctx context.Context, db *sql.DB, sqlStr string) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	vs := make([]T, 0)
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, errors.Wrap(err, "")
		}
		var v T
		if err := sonic.UnmarshalString(record, &v); err != nil {
			return nil, errors.Wrap(err, record)
		}
		vs = append(vs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return vs, nil
}
