package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/fumin/qxy"
	"github.com/fumin/qxy/circuit"
)

// scripted is a backend whose job goes through a fixed sequence of states.
type scripted struct {
	mu     sync.Mutex
	states []Status
	polls  int
	err    error
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Compile(ctx context.Context, c *circuit.Circuit, level int) (*circuit.Circuit, error) {
	return c, nil
}
func (s *scripted) Process(ctx context.Context, c *circuit.Circuit, shots int) (Handle, error) {
	return Handle{ID: "1", Backend: s.Name()}, nil
}
func (s *scripted) Status(ctx context.Context, h Handle) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Status{}, s.err
	}
	st := s.states[min(s.polls, len(s.states)-1)]
	s.polls++
	return st, nil
}
func (s *scripted) Result(ctx context.Context, h Handle) (qxy.Counts, error) {
	return qxy.Counts{"01": 3}, nil
}
func (s *scripted) Cancel(ctx context.Context, h Handle) error { return nil }

func fastPolicy() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func TestWait(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := Handle{ID: "1", Backend: "scripted"}

	b := &scripted{states: []Status{{State: Queued}, {State: Running}, {State: Running}, {State: Completed}}}
	counts, err := Wait(ctx, b, h, fastPolicy())
	require.NoError(t, err)
	require.Equal(t, qxy.Counts{"01": 3}, counts)
	require.Equal(t, 4, b.polls)

	b = &scripted{states: []Status{{State: Running}, {State: Error, Message: "boom"}}}
	_, err = Wait(ctx, b, h, fastPolicy())
	require.ErrorContains(t, err, "boom")

	b = &scripted{states: []Status{{State: Cancelled}}}
	_, err = Wait(ctx, b, h, fastPolicy())
	require.True(t, errors.Is(err, ErrCancelled), "%+v", err)

	b = &scripted{err: errors.Wrap(ErrNotFound, "1")}
	_, err = Wait(ctx, b, h, fastPolicy())
	require.True(t, errors.Is(err, ErrNotFound), "%+v", err)
	require.Equal(t, 0, b.polls)
}

func TestWaitDeadline(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	b := &scripted{states: []Status{{State: Running}}}
	_, err := Wait(ctx, b, Handle{ID: "1"}, fastPolicy())
	require.True(t, errors.Is(err, context.DeadlineExceeded), "%+v", err)
}

type projects struct {
	byName  map[string]Project
	lookErr error
	created int
}

func (p *projects) ProjectByName(ctx context.Context, name string) (Project, error) {
	if p.lookErr != nil {
		return Project{}, p.lookErr
	}
	pr, ok := p.byName[name]
	if !ok {
		return Project{}, errors.Wrap(ErrNotFound, name)
	}
	return pr, nil
}

func (p *projects) NewProject(ctx context.Context, name string) (Project, error) {
	p.created++
	pr := Project{ID: name + "-id", Name: name}
	p.byName[name] = pr
	return pr, nil
}

func TestEnsureProject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ps := &projects{byName: map[string]Project{}}
	for range 3 {
		p, err := EnsureProject(ctx, ps, "Microcanonical ExpVal Project")
		require.NoError(t, err)
		require.Equal(t, "Microcanonical ExpVal Project-id", p.ID)
	}
	require.Equal(t, 1, ps.created)

	ps = &projects{byName: map[string]Project{}, lookErr: errors.New("unauthorized")}
	_, err := EnsureProject(ctx, ps, "p")
	require.ErrorContains(t, err, "unauthorized")
	require.Equal(t, 0, ps.created)
}

func TestHandle(t *testing.T) {
	t.Parallel()
	h := Handle{ID: "0b1e", Backend: "H1-1E"}
	b, err := h.Marshal()
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"0b1e","backend":"H1-1E"}`, string(b))
	parsed, err := ParseHandle(b)
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	_, err = ParseHandle([]byte(`{"backend":"H1-1E"}`))
	require.Error(t, err)
	_, err = ParseHandle([]byte(`{`))
	require.Error(t, err)
}

func TestStateTerminal(t *testing.T) {
	t.Parallel()
	for s, terminal := range map[State]bool{Queued: false, Running: false, Completed: true, Error: true, Cancelled: true} {
		require.Equal(t, terminal, s.Terminal(), string(s))
	}
}
