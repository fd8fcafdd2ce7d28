// Package server exposes a backend over the REST API spoken by the nexus client.
package server

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fumin/qxy/backend"
	"github.com/fumin/qxy/backend/nexus"
	"github.com/fumin/qxy/circuit"
)

const maxBody = 16 << 20

// Service is what the server exposes.
type Service interface {
	backend.Backend
	backend.ProjectService
}

type badRequest struct{ error }

// failed is the error of a job that ran but did not succeed.
type failed struct{ error }

// Server is an http.Handler.
type Server struct {
	svc   Service
	token string
	mux   *http.ServeMux

	// jobs maps idempotency keys to the jobs they created.
	mu   sync.Mutex
	jobs map[string]string
}

// New returns a server. If token is not empty, requests must carry it as a bearer token.
func New(svc Service, token string) *Server {
	s := &Server{svc: svc, token: token, mux: http.NewServeMux(), jobs: make(map[string]string)}
	s.mux.HandleFunc("GET "+nexus.PathProjects, s.handle(s.getProject))
	s.mux.HandleFunc("POST "+nexus.PathProjects, s.handle(s.newProject))
	s.mux.HandleFunc("POST "+nexus.PathCompile, s.handle(s.compile))
	s.mux.HandleFunc("POST "+nexus.PathJobs, s.handle(s.process))
	s.mux.HandleFunc("GET "+nexus.PathJobs+"/{id}", s.handle(s.status))
	s.mux.HandleFunc("GET "+nexus.PathJobs+"/{id}/result", s.handle(s.result))
	s.mux.HandleFunc("DELETE "+nexus.PathJobs+"/{id}", s.handle(s.cancel))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.token != "" {
		auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(auth), []byte(s.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, nexus.ErrorResponse{Error: "unauthorized"})
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handle(f func(context.Context, *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp, err := f(r.Context(), r)
		if err != nil {
			code := errorCode(err)
			if code >= 500 {
				zap.L().Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
			}
			writeJSON(w, code, nexus.ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resp)
		zap.L().Debug("served", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("took", time.Since(start)))
	}
}

func errorCode(err error) int {
	var br badRequest
	var f failed
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.As(err, &f):
		return http.StatusUnprocessableEntity
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backend.ErrNotDone):
		return http.StatusConflict
	case errors.Is(err, backend.ErrCancelled):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		b = []byte(`{"error":"marshal"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

func decode(r *http.Request, v any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := sonic.Unmarshal(b, v); err != nil {
		return badRequest{errors.Wrap(err, "")}
	}
	return nil
}

func (s *Server) getProject(ctx context.Context, r *http.Request) (any, error) {
	name := r.URL.Query().Get("name")
	if name == "" {
		return nil, badRequest{errors.Errorf("empty name")}
	}
	return s.svc.ProjectByName(ctx, name)
}

func (s *Server) newProject(ctx context.Context, r *http.Request) (any, error) {
	var req nexus.ProjectRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, badRequest{errors.Errorf("empty name")}
	}
	if _, err := s.svc.ProjectByName(ctx, req.Name); err == nil {
		return nil, badRequest{errors.Errorf("project %q exists", req.Name)}
	}
	return s.svc.NewProject(ctx, req.Name)
}

func (s *Server) checkMachine(machine string) error {
	if machine != "" && machine != s.svc.Name() {
		return badRequest{errors.Errorf("unknown machine %q, serving %q", machine, s.svc.Name())}
	}
	return nil
}

func (s *Server) compile(ctx context.Context, r *http.Request) (any, error) {
	var req nexus.CompileRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkMachine(req.Machine); err != nil {
		return nil, err
	}
	c, err := circuit.ParseQASM(req.QASM)
	if err != nil {
		return nil, badRequest{err}
	}
	compiled, err := s.svc.Compile(ctx, c, req.Level)
	if err != nil {
		return nil, badRequest{err}
	}
	return nexus.CompileResponse{QASM: circuit.QASM(compiled)}, nil
}

func (s *Server) process(ctx context.Context, r *http.Request) (any, error) {
	var req nexus.JobRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkMachine(req.Machine); err != nil {
		return nil, err
	}
	if req.Project != "" {
		if _, err := s.svc.ProjectByName(ctx, req.Project); err != nil {
			return nil, errors.Wrap(err, "project")
		}
	}
	c, err := circuit.ParseQASM(req.QASM)
	if err != nil {
		return nil, badRequest{err}
	}
	if req.Name != "" {
		c.Name = req.Name
	}

	key := r.Header.Get(nexus.HeaderIdempotencyKey)
	if key != "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		if id, ok := s.jobs[key]; ok {
			zap.L().Info("duplicate job request", zap.String("key", key), zap.String("id", id))
			return nexus.JobResponse{ID: id}, nil
		}
	}
	h, err := s.svc.Process(ctx, c, req.Shots)
	if err != nil {
		return nil, badRequest{err}
	}
	if key != "" {
		s.jobs[key] = h.ID
	}
	return nexus.JobResponse{ID: h.ID}, nil
}

func (s *Server) handleOf(r *http.Request) backend.Handle {
	return backend.Handle{ID: r.PathValue("id"), Backend: s.svc.Name()}
}

func (s *Server) status(ctx context.Context, r *http.Request) (any, error) {
	return s.svc.Status(ctx, s.handleOf(r))
}

func (s *Server) result(ctx context.Context, r *http.Request) (any, error) {
	counts, err := s.svc.Result(ctx, s.handleOf(r))
	switch {
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, backend.ErrNotDone), errors.Is(err, backend.ErrCancelled):
		return nil, err
	case err != nil:
		return nil, failed{err}
	}
	return nexus.ResultResponse{Counts: counts}, nil
}

func (s *Server) cancel(ctx context.Context, r *http.Request) (any, error) {
	if err := s.svc.Cancel(ctx, s.handleOf(r)); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}
