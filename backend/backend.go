// Package backend submits circuits to quantum backends and retrieves their results asynchronously.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fumin/qxy"
	"github.com/fumin/qxy/circuit"
	"github.com/fumin/qxy/util"
)

var (
	// ErrNotFound is returned for unknown jobs and projects.
	ErrNotFound = errors.New("not found")
	// ErrNotDone is returned when the result of an unfinished job is requested.
	ErrNotDone = errors.New("not done")
	// ErrCancelled is returned for results of cancelled jobs.
	ErrCancelled = errors.New("cancelled")
)

// State is the lifecycle state of a job.
type State string

const (
	Queued    State = "QUEUED"
	Running   State = "RUNNING"
	Completed State = "COMPLETED"
	Error     State = "ERROR"
	Cancelled State = "CANCELLED"
)

// Terminal reports whether a job in this state will not change anymore.
func (s State) Terminal() bool {
	switch s {
	case Completed, Error, Cancelled:
		return true
	}
	return false
}

// Status is the state of a job as reported by a backend.
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// Handle identifies a submitted job.
type Handle struct {
	ID      string `json:"id"`
	Backend string `json:"backend"`
}

func (h Handle) String() string {
	return fmt.Sprintf("%s/%s", h.Backend, h.ID)
}

// Marshal serializes h to JSON.
func (h Handle) Marshal() ([]byte, error) {
	b, err := sonic.Marshal(h)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return b, nil
}

// ParseHandle deserializes a handle written by Marshal.
func ParseHandle(b []byte) (Handle, error) {
	var h Handle
	if err := sonic.Unmarshal(b, &h); err != nil {
		return Handle{}, errors.Wrap(err, string(b))
	}
	if h.ID == "" {
		return Handle{}, errors.Errorf("empty handle %s", b)
	}
	return h, nil
}

// Backend executes circuits asynchronously.
type Backend interface {
	// Name identifies the backend in handles.
	Name() string
	// Compile optimizes a circuit for the backend.
	Compile(ctx context.Context, c *circuit.Circuit, level int) (*circuit.Circuit, error)
	// Process submits a circuit and returns without waiting for it to run.
	Process(ctx context.Context, c *circuit.Circuit, shots int) (Handle, error)
	Status(ctx context.Context, h Handle) (Status, error)
	// Result returns the measured bitstrings, or ErrNotDone if the job has not completed.
	Result(ctx context.Context, h Handle) (qxy.Counts, error)
	Cancel(ctx context.Context, h Handle) error
}

// Project groups jobs on a backend.
type Project struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// ProjectService manages projects.
type ProjectService interface {
	// ProjectByName returns ErrNotFound if there is no project with that name.
	ProjectByName(ctx context.Context, name string) (Project, error)
	NewProject(ctx context.Context, name string) (Project, error)
}

// EnsureProject returns the project with the given name, creating it if it does not exist.
func EnsureProject(ctx context.Context, ps ProjectService, name string) (Project, error) {
	p, err := ps.ProjectByName(ctx, name)
	switch {
	case err == nil:
		return p, nil
	case !errors.Is(err, ErrNotFound):
		return Project{}, errors.Wrap(err, name)
	}

	zap.L().Info("creating project", zap.String("name", name))
	p, err = ps.NewProject(ctx, name)
	if err != nil {
		return Project{}, errors.Wrap(err, name)
	}
	return p, nil
}

// DefaultPolicy returns the polling policy of Wait.
// It never gives up by itself, and relies on the context for a deadline.
func DefaultPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

var errPending = errors.New("pending")

// Wait polls the status of a job until it is terminal, and returns its result.
func Wait(ctx context.Context, b Backend, h Handle, policy backoff.BackOff) (qxy.Counts, error) {
	throttler := util.NewSkipThrottler(10 * time.Second)
	poll := func() (Status, error) {
		st, err := b.Status(ctx, h)
		if err != nil {
			return Status{}, backoff.Permanent(errors.Wrap(err, ""))
		}
		if !st.State.Terminal() {
			return st, errPending
		}
		return st, nil
	}
	notify := func(err error, d time.Duration) {
		if ok, skipped := throttler.Take(); ok {
			zap.L().Debug("waiting", zap.Stringer("handle", h), zap.Duration("next", d), zap.Int("skipped", skipped))
		}
	}

	st, err := backoff.RetryNotifyWithData(poll, backoff.WithContext(policy, ctx), notify)
	if err != nil {
		return nil, errors.Wrap(err, h.String())
	}
	switch st.State {
	case Completed:
	case Cancelled:
		return nil, errors.Wrap(ErrCancelled, h.String())
	default:
		return nil, errors.Errorf("%s %s %s", h, st.State, st.Message)
	}

	counts, err := b.Result(ctx, h)
	if err != nil {
		return nil, errors.Wrap(err, h.String())
	}
	return counts, nil
}
