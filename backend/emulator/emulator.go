// Package emulator is an in-process quantum backend that runs jobs on a pool of statevector simulators.
package emulator

import (
	"context"
	"maps"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fumin/qxy"
	"github.com/fumin/qxy/backend"
	"github.com/fumin/qxy/circuit"
	"github.com/fumin/qxy/statevector"
)

const (
	// readoutError is the bit flip probability of noisy machines.
	readoutError = 3e-3
	queueSize    = 1024
)

var hardwareEmulatorRe = regexp.MustCompile(`\de$`)

// NoiseLevel returns the readout error of a machine.
// Emulators of hardware, named like H1-1E, are noisy, while syntax checkers and simulators are not.
func NoiseLevel(machine string) float64 {
	m := strings.ToLower(machine)
	switch {
	case strings.HasSuffix(m, "sc"), strings.Contains(m, "sim"):
		return 0
	case hardwareEmulatorRe.MatchString(m), strings.Contains(m, "emulator"):
		return readoutError
	}
	return 0
}

// Config configures an Emulator.
type Config struct {
	Machine string
	Workers int
	// Seed makes sampling reproducible.
	Seed uint64
	// Latency is added to each job, to emulate a queue.
	Latency time.Duration
}

type job struct {
	id     string
	seq    uint64
	c      *circuit.Circuit
	shots  int
	status backend.Status
	counts qxy.Counts
}

// Emulator runs jobs on a fixed number of worker goroutines.
type Emulator struct {
	cfg   Config
	noise float64
	queue chan *job

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup

	mu       sync.Mutex
	jobs     map[string]*job
	seq      uint64
	projects map[string]backend.Project
}

// New starts an emulator.
// Close must be called to stop its workers.
func New(cfg Config) *Emulator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	e := &Emulator{
		cfg:      cfg,
		noise:    NoiseLevel(cfg.Machine),
		queue:    make(chan *job, queueSize),
		jobs:     make(map[string]*job),
		projects: make(map[string]backend.Project),
	}
	for range cfg.Workers {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for j := range e.queue {
				e.run(j)
			}
		}()
	}
	return e
}

// Close stops accepting jobs, and waits for queued jobs to finish.
func (e *Emulator) Close() error {
	e.closeMu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.closeMu.Unlock()
	e.wg.Wait()
	return nil
}

func (e *Emulator) Name() string { return e.cfg.Machine }

func (e *Emulator) Compile(ctx context.Context, c *circuit.Circuit, level int) (*circuit.Circuit, error) {
	compiled, err := circuit.Compile(c, level)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return compiled, nil
}

func (e *Emulator) Process(ctx context.Context, c *circuit.Circuit, shots int) (backend.Handle, error) {
	if shots < 1 {
		return backend.Handle{}, errors.Errorf("shots %d", shots)
	}
	if c.N > statevector.MaxQubits {
		return backend.Handle{}, errors.Errorf("%d qubits exceed %d", c.N, statevector.MaxQubits)
	}
	if !c.Measured() {
		return backend.Handle{}, errors.Errorf("circuit %q has no measurements", c.Name)
	}

	e.mu.Lock()
	e.seq++
	j := &job{id: uuid.NewString(), seq: e.seq, c: c.Copy(), shots: shots, status: backend.Status{State: backend.Queued}}
	e.jobs[j.id] = j
	e.mu.Unlock()

	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		e.setStatus(j, backend.Status{State: backend.Error, Message: "emulator closed"})
		return backend.Handle{}, errors.Errorf("emulator closed")
	}
	select {
	case e.queue <- j:
	case <-ctx.Done():
		e.setStatus(j, backend.Status{State: backend.Cancelled, Message: "submission aborted"})
		return backend.Handle{}, errors.Wrap(ctx.Err(), "")
	}
	zap.L().Debug("queued", zap.String("id", j.id), zap.String("name", c.Name), zap.Int("shots", shots))
	return backend.Handle{ID: j.id, Backend: e.Name()}, nil
}

func (e *Emulator) run(j *job) {
	e.mu.Lock()
	if j.status.State != backend.Queued {
		e.mu.Unlock()
		return
	}
	j.status = backend.Status{State: backend.Running}
	e.mu.Unlock()

	if e.cfg.Latency > 0 {
		time.Sleep(e.cfg.Latency)
	}
	counts, err := e.simulate(j)

	e.mu.Lock()
	defer e.mu.Unlock()
	if j.status.State == backend.Cancelled {
		return
	}
	if err != nil {
		j.status = backend.Status{State: backend.Error, Message: err.Error()}
		zap.L().Info("job failed", zap.String("id", j.id), zap.Error(err))
		return
	}
	j.counts = counts
	j.status = backend.Status{State: backend.Completed}
	zap.L().Debug("completed", zap.String("id", j.id), zap.String("name", j.c.Name))
}

func (e *Emulator) simulate(j *job) (qxy.Counts, error) {
	s, err := statevector.Run(j.c)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	rng := rand.New(rand.NewPCG(e.cfg.Seed, j.seq))
	counts := marginal(s.Sample(j.shots, rng), measured(j.c))
	if e.noise > 0 {
		counts = statevector.ReadoutNoise(counts, e.noise, rng)
	}
	return counts, nil
}

// measured returns the measured qubits in ascending order.
func measured(c *circuit.Circuit) []int {
	seen := make([]bool, c.N)
	for _, g := range c.Gates {
		if g.Op == circuit.OpMeasure {
			seen[g.Qubits[0]] = true
		}
	}
	qubits := make([]int, 0, c.N)
	for q, ok := range seen {
		if ok {
			qubits = append(qubits, q)
		}
	}
	return qubits
}

// marginal keeps only the bits of the given qubits.
func marginal(counts qxy.Counts, qubits []int) qxy.Counts {
	m := make(qxy.Counts, len(counts))
	for bs, f := range counts {
		if len(qubits) == len(bs) {
			m[bs] += f
			continue
		}
		b := make([]byte, len(qubits))
		for i, q := range qubits {
			b[i] = bs[q]
		}
		m[string(b)] += f
	}
	return m
}

func (e *Emulator) setStatus(j *job, st backend.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j.status = st
}

func (e *Emulator) get(h backend.Handle) (*job, error) {
	j, ok := e.jobs[h.ID]
	if !ok {
		return nil, errors.Wrap(backend.ErrNotFound, h.String())
	}
	return j, nil
}

func (e *Emulator) Status(ctx context.Context, h backend.Handle) (backend.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.get(h)
	if err != nil {
		return backend.Status{}, err
	}
	return j.status, nil
}

func (e *Emulator) Result(ctx context.Context, h backend.Handle) (qxy.Counts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.get(h)
	if err != nil {
		return nil, err
	}
	switch j.status.State {
	case backend.Completed:
		return maps.Clone(j.counts), nil
	case backend.Cancelled:
		return nil, errors.Wrap(backend.ErrCancelled, h.String())
	case backend.Error:
		return nil, errors.Errorf("%s %s", h, j.status.Message)
	}
	return nil, errors.Wrap(backend.ErrNotDone, h.String())
}

// Cancel cancels a queued or running job. Cancelling a finished job has no effect.
func (e *Emulator) Cancel(ctx context.Context, h backend.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.get(h)
	if err != nil {
		return err
	}
	if !j.status.State.Terminal() {
		j.status = backend.Status{State: backend.Cancelled}
	}
	return nil
}

func (e *Emulator) ProjectByName(ctx context.Context, name string) (backend.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.projects[name]
	if !ok {
		return backend.Project{}, errors.Wrap(backend.ErrNotFound, name)
	}
	return p, nil
}

func (e *Emulator) NewProject(ctx context.Context, name string) (backend.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.projects[name]; ok {
		return backend.Project{}, errors.Errorf("project %q exists", name)
	}
	p := backend.Project{ID: uuid.NewString(), Name: name, Created: time.Now().UTC()}
	e.projects[name] = p
	return p, nil
}
