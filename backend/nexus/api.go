// Package nexus is a client of a Nexus-style REST API for quantum jobs.
package nexus

import (
	"github.com/fumin/qxy"
	"github.com/fumin/qxy/backend"
)

// API paths.
const (
	PathProjects = "/api/v1/projects"
	PathJobs     = "/api/v1/jobs"
	PathCompile  = "/api/v1/compile"
)

// HeaderIdempotencyKey identifies a job request across retries.
const HeaderIdempotencyKey = "Idempotency-Key"

// ProjectRequest creates a project.
type ProjectRequest struct {
	Name string `json:"name"`
}

// CompileRequest asks the server to optimize a circuit.
type CompileRequest struct {
	Machine string `json:"machine"`
	QASM    string `json:"qasm"`
	Level   int    `json:"level"`
}

// CompileResponse holds the optimized circuit.
type CompileResponse struct {
	QASM string `json:"qasm"`
}

// JobRequest submits a circuit.
type JobRequest struct {
	Project string `json:"project"`
	Machine string `json:"machine"`
	Name    string `json:"name"`
	QASM    string `json:"qasm"`
	Shots   int    `json:"shots"`
}

// JobResponse identifies a submitted job.
type JobResponse struct {
	ID string `json:"id"`
}

// StatusResponse is the state of a job.
type StatusResponse = backend.Status

// ResultResponse holds the measured bitstrings of a completed job.
type ResultResponse struct {
	Counts qxy.Counts `json:"counts"`
}

// ErrorResponse is the body of non 2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
