// Package cerrors defines the error kinds the channel-and-shaping pipeline
// distinguishes, so callers can branch on failure category instead of
// string-matching messages.
package cerrors

import "fmt"

// Kind identifies a category of failure across the pipeline.
type Kind string

const (
	// KindConfig is a topology/MCS-table validation failure at load time.
	// Fatal: it fails startup.
	KindConfig Kind = "config_error"

	// KindSolverUnavailable means a caller explicitly requested the
	// external solver engine and none is present.
	KindSolverUnavailable Kind = "solver_unavailable"

	// KindPathCompute means the PathSolver failed for one (tx, rx) pair.
	// Recovered locally: the batch synthesizes a degraded PathResult.
	KindPathCompute Kind = "path_compute_error"

	// KindShaper means a kernel traffic-control command failed.
	// Recovered locally: the interface is marked degraded.
	KindShaper Kind = "shaper_error"

	// KindUnknownEntity means a node or interface named in a request is
	// not present in the topology.
	KindUnknownEntity Kind = "unknown_entity"

	// KindInvalidRequest means a request is well-formed but semantically
	// invalid for the current state (e.g. targeting a non-wireless
	// interface).
	KindInvalidRequest Kind = "invalid_request"

	// KindTransient means a single command timed out; treated as
	// KindShaper and retried on the next recompute.
	KindTransient Kind = "transient"
)

// Error wraps an underlying error with a Kind so callers can branch on
// category via errors.As.
type Error struct {
	Kind Kind
	Op   string // what was being attempted, e.g. "load_topology", "shape(node1/eth1)"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for the given kind and operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
