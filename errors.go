package richardsonsim

import (
	"fmt"

	"github.com/pkg/errors"
)

// throwf panics with a formatted message, the teacher's idiom for
// invariant violations on a hot path proven unreachable by
// construction (e.g. a mismatched state vector length inside
// StateDiff). Recovered once at the worker boundary in Solver.Run.
func throwf(format string, a ...interface{}) {
	panic(fmt.Sprintf(format, a...))
}

// Sentinel errors returned by this package. Use errors.Is to test for
// them; call sites wrap them with github.com/pkg/errors to attach
// context.
var (
	// ErrInvalidConfig is returned by NewParams/LoadParamsYAML when a
	// Params invariant is violated.
	ErrInvalidConfig = errors.New("richardsonsim: invalid configuration")

	// ErrNoAllowedMethods is returned by New and Solver.Refresh when the
	// method registry built from Params ends up empty (e.g.
	// Params.IsStiff with no implicit methods implemented by this core).
	// Solver.Run does not return it: a constructed Solver always holds a
	// non-empty registry.
	ErrNoAllowedMethods = errors.New("richardsonsim: no allowed methods")

	// ErrUnknownMethod is returned by result-store queries for a
	// MethodID the solver did not run.
	ErrUnknownMethod = errors.New("richardsonsim: unknown method")

	// ErrUnknownTime is returned by StateAt when the bracketing search
	// over a trajectory fails. Cannot happen for a non-empty trajectory
	// since StateAt clamps to the first/last sample.
	ErrUnknownTime = errors.New("richardsonsim: unknown time")

	// ErrNotImplemented is returned by Integrator.AdvanceImplicit when
	// called on an explicit-only integrator.
	ErrNotImplemented = errors.New("richardsonsim: not implemented")
)
