package nexus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fumin/qxy"
	"github.com/fumin/qxy/backend"
	"github.com/fumin/qxy/circuit"
)

// Config configures a Client.
type Config struct {
	// URL is the base address of the server, such as https://nexus.example.com.
	URL string
	// Token is sent as a bearer token if not empty.
	Token string
	// Machine is the device that runs submitted jobs.
	Machine string
	// Project is the name of the project jobs are submitted to.
	Project string

	HTTPClient *http.Client
	// Retry returns the policy for retrying transient failures.
	Retry func() backoff.BackOff
}

// DefaultRetry retries transient failures for up to a minute.
func DefaultRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = time.Minute
	b.Reset()
	return b
}

// Client is a backend.Backend and backend.ProjectService over HTTP.
type Client struct {
	cfg  Config
	base *url.URL
}

// New returns a client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, cfg.URL)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("invalid url %q", cfg.URL)
	}
	if cfg.Machine == "" {
		return nil, errors.Errorf("empty machine")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetry
	}
	return &Client{cfg: cfg, base: base}, nil
}

func (c *Client) Name() string { return c.cfg.Machine }

func (c *Client) Compile(ctx context.Context, cc *circuit.Circuit, level int) (*circuit.Circuit, error) {
	req := CompileRequest{Machine: c.cfg.Machine, QASM: circuit.QASM(cc), Level: level}
	var resp CompileResponse
	if err := c.do(ctx, http.MethodPost, PathCompile, nil, nil, req, &resp); err != nil {
		return nil, errors.Wrap(err, cc.Name)
	}
	compiled, err := circuit.ParseQASM(resp.QASM)
	if err != nil {
		return nil, errors.Wrap(err, cc.Name)
	}
	return compiled, nil
}

func (c *Client) Process(ctx context.Context, cc *circuit.Circuit, shots int) (backend.Handle, error) {
	req := JobRequest{Project: c.cfg.Project, Machine: c.cfg.Machine, Name: cc.Name, QASM: circuit.QASM(cc), Shots: shots}
	// The same key on every attempt lets the server drop retried duplicates.
	header := http.Header{HeaderIdempotencyKey: {uuid.NewString()}}
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, PathJobs, nil, header, req, &resp); err != nil {
		return backend.Handle{}, errors.Wrap(err, cc.Name)
	}
	if resp.ID == "" {
		return backend.Handle{}, errors.Errorf("empty job id for %q", cc.Name)
	}
	return backend.Handle{ID: resp.ID, Backend: c.Name()}, nil
}

func jobPath(h backend.Handle, suffix string) string {
	return PathJobs + "/" + url.PathEscape(h.ID) + suffix
}

func (c *Client) Status(ctx context.Context, h backend.Handle) (backend.Status, error) {
	var st StatusResponse
	if err := c.do(ctx, http.MethodGet, jobPath(h, ""), nil, nil, nil, &st); err != nil {
		return backend.Status{}, errors.Wrap(err, h.String())
	}
	return st, nil
}

func (c *Client) Result(ctx context.Context, h backend.Handle) (qxy.Counts, error) {
	var resp ResultResponse
	if err := c.do(ctx, http.MethodGet, jobPath(h, "/result"), nil, nil, nil, &resp); err != nil {
		return nil, errors.Wrap(err, h.String())
	}
	return resp.Counts, nil
}

func (c *Client) Cancel(ctx context.Context, h backend.Handle) error {
	if err := c.do(ctx, http.MethodDelete, jobPath(h, ""), nil, nil, nil, nil); err != nil {
		return errors.Wrap(err, h.String())
	}
	return nil
}

func (c *Client) ProjectByName(ctx context.Context, name string) (backend.Project, error) {
	var p backend.Project
	if err := c.do(ctx, http.MethodGet, PathProjects, url.Values{"name": {name}}, nil, nil, &p); err != nil {
		return backend.Project{}, errors.Wrap(err, name)
	}
	return p, nil
}

func (c *Client) NewProject(ctx context.Context, name string) (backend.Project, error) {
	var p backend.Project
	if err := c.do(ctx, http.MethodPost, PathProjects, nil, nil, ProjectRequest{Name: name}, &p); err != nil {
		return backend.Project{}, errors.Wrap(err, name)
	}
	return p, nil
}

// do sends a JSON request, retrying network errors and 5xx responses.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, header http.Header, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = sonic.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "")
		}
	}
	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()

	var attempt int
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, ""))
		}
		for k, vs := range header {
			req.Header[k] = vs
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}
		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "")
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "")
		}

		switch {
		case resp.StatusCode >= 500:
			return errors.Errorf("%s %s: %d %s", method, path, resp.StatusCode, message(b))
		case resp.StatusCode >= 300:
			return backoff.Permanent(statusError(method, path, resp.StatusCode, b))
		}
		if out == nil {
			return nil
		}
		if err := sonic.Unmarshal(b, out); err != nil {
			return backoff.Permanent(errors.Wrap(err, string(b)))
		}
		return nil
	}
	notify := func(err error, d time.Duration) {
		zap.L().Info("retrying", zap.String("method", method), zap.String("path", path), zap.Int("attempt", attempt), zap.Duration("next", d), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.cfg.Retry(), ctx), notify); err != nil {
		return err
	}
	return nil
}

func message(b []byte) string {
	var e ErrorResponse
	if err := sonic.Unmarshal(b, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(b))
}

func statusError(method, path string, code int, b []byte) error {
	msg := fmt.Sprintf("%s %s: %d %s", method, path, code, message(b))
	switch code {
	case http.StatusNotFound:
		return errors.Wrap(backend.ErrNotFound, msg)
	case http.StatusConflict:
		return errors.Wrap(backend.ErrNotDone, msg)
	case http.StatusGone:
		return errors.Wrap(backend.ErrCancelled, msg)
	}
	return errors.New(msg)
}
