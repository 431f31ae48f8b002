package richardsonsim

import (
	"github.com/go-numerics/richardsonsim/richardson"
	"github.com/go-numerics/richardsonsim/state"
)

// methodEntry is the registry's owned triple for one installed method.
// The registry holds exclusive ownership until a value is handed to a
// worker goroutine in Solver.Run; no two workers ever observe the same
// methodEntry.
type methodEntry struct {
	id         MethodID
	integrator Integrator
	tableau    *richardson.Tableau
	params     Params
}

// registry is the installed-method table (C4): a map from MethodID to
// its owned (integrator, tableau, params) triple. Opaque keying by the
// stable public MethodID, per the specification's guidance against
// building an inheritance hierarchy for method dispatch.
type registry struct {
	entries map[MethodID]*methodEntry
}

// allExplicitRequested reports whether isFast or isLarge steers the
// registry toward RK4-only installation, mirroring the original
// source's isAllExplicit/isAllImplicit distinction.
func (p Params) allExplicitRequested() bool {
	return p.IsFast || p.IsLarge
}

func newIntegrator(id MethodID) Integrator {
	switch id {
	case Euler:
		return &EulerIntegrator{}
	case RK2:
		return &RK2Integrator{}
	case RK4:
		return &RK4Integrator{}
	case ImplicitEuler:
		return &ImplicitEulerIntegrator{}
	case CrankNicolson:
		return &CrankNicolsonIntegrator{}
	default:
		return nil
	}
}

// newRegistry installs methods per the rules in the specification's
// method-registry section:
//
//   - isStiff: install only implicit methods. This core never runs
//     them (the controller only calls AdvanceExplicit), so a stiff
//     request always yields an empty registry and ErrNoAllowedMethods.
//   - isFast or isLarge: install RK4 only, overriding the individual
//     Use* flags.
//   - otherwise: install one explicit integrator per enabled Use* flag.
//
// UseImplicitEuler/UseCrank are never installed from any branch: the
// controller only ever calls AdvanceExplicit (advanceOneStep), and
// ImplicitEuler/CrankNicolson's AdvanceExplicit unconditionally panics
// (implicit.go's implicitOnly embed). Declared, unused by this core,
// same as the isStiff branch above.
//
// Each installed method gets its own tableau and its own scoped copy
// of p. The tableau is left unbuilt: advanceOneStep rebuilds it every
// inner-loop iteration once the state vector's length is known, so
// sizing it here would be redundant.
func newRegistry(p Params) (*registry, error) {
	var ids []MethodID
	switch {
	case p.IsStiff:
		// Implicit methods exist (ImplicitEuler, CrankNicolson) but the
		// controller never calls AdvanceImplicit, so nothing is installed.
	case p.allExplicitRequested():
		ids = []MethodID{RK4}
	default:
		if p.UseEuler {
			ids = append(ids, Euler)
		}
		if p.UseRK2 {
			ids = append(ids, RK2)
		}
		if p.UseRK4 {
			ids = append(ids, RK4)
		}
		// UseImplicitEuler/UseCrank intentionally not installed; see above.
	}

	entries := make(map[MethodID]*methodEntry, len(ids))
	for _, id := range ids {
		scoped := p
		scoped.CurrentTableSize = p.MinTableSize

		entries[id] = &methodEntry{
			id:         id,
			integrator: newIntegrator(id),
			tableau:    &richardson.Tableau{},
			params:     scoped,
		}
	}

	if len(entries) == 0 {
		return nil, ErrNoAllowedMethods
	}
	return &registry{entries: entries}, nil
}

// initializeAll sets every installed integrator's internal state to y0,
// as required before the first call to advanceOneStep.
func (r *registry) initializeAll(y0 state.State) {
	for _, e := range r.entries {
		e.integrator.Initialize(y0)
	}
}

// ids returns the installed method identifiers in no particular order.
func (r *registry) ids() []MethodID {
	out := make([]MethodID, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}
