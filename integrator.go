package richardsonsim

import "github.com/go-numerics/richardsonsim/state"

// MethodID is a stable integer identifier for a solver method. These
// values are part of the public API and must not change.
type MethodID int

// Method identifiers, stable across versions.
const (
	Euler         MethodID = 10
	RK2           MethodID = 20
	RK4           MethodID = 30
	ImplicitEuler MethodID = 40
	CrankNicolson MethodID = 50
)

func (m MethodID) String() string {
	switch m {
	case Euler:
		return "Euler"
	case RK2:
		return "RK2"
	case RK4:
		return "RK4"
	case ImplicitEuler:
		return "ImplicitEuler"
	case CrankNicolson:
		return "CrankNicolson"
	default:
		return "MethodID(unknown)"
	}
}

// MethodKind distinguishes explicit schemes (always advanceable) from
// implicit schemes (require AdvanceImplicit), encoding the
// explicit/implicit split at the type level instead of at the call
// site: a controller that only ever calls AdvanceExplicit can never
// observe ErrNotImplemented for an integrator whose Kind is
// MethodKindExplicit in the first place.
type MethodKind int

const (
	MethodKindExplicit MethodKind = iota
	MethodKindImplicit
)

// Integrator is the fixed-step integrator contract (C2): given a
// previous state, a substep size h and a substep count nSub, advance
// nSub uniform substeps of size h and return the state at
// tBegin+nSub*h. Each Integrator owns its working vectors privately; a
// single Integrator value must not be shared between
// concurrently-running workers.
//
// The normative substep semantics: h is already the per-substep size
// -- the caller (the step controller) divides the tableau row's total
// step by rho^i and passes the quotient as h along with nSub=rho^i.
// AdvanceExplicit takes nSub substeps of exactly that size; it must
// not divide h again.
type Integrator interface {
	// Initialize prepares internal working state sized to y0.
	Initialize(y0 state.State)
	// AdvanceExplicit advances nSub uniform substeps of size h starting
	// at tBegin, evaluating f to obtain the rate of change of each X
	// variable. Returns the resulting state at tBegin+nSub*h.
	AdvanceExplicit(yPrev state.State, h float64, tBegin float64, nSub int, f state.Diffs) state.State
	// AdvanceImplicit is the implicit-scheme counterpart. Integrators
	// with Kind() == MethodKindExplicit return ErrNotImplemented.
	AdvanceImplicit(yPrev state.State, h float64, tBegin float64, nSub int, f state.Diffs) (state.State, error)
	// ErrorOrder reports the integrator's local-truncation-error
	// exponent, per the source's convention (Euler: 2 and RK2: 3, i.e.
	// p+1; RK4: 4, i.e. p) -- used only as the controller's initial
	// theoretical convergence-rate baseline, never as a correctness
	// claim about the scheme itself.
	ErrorOrder() int
	// Kind reports whether the integrator is explicit or implicit.
	Kind() MethodKind
}

// StateDiff evaluates f against s without modifying s, returning the
// rate-of-change state (one value per X symbol). Panics if f does not
// have exactly one entry per X symbol in s.
func StateDiff(f state.Diffs, s state.State) state.State {
	diff := s.Clone()
	syms := s.XSymbols()
	if len(f) != len(syms) {
		throwf("StateDiff: length of diffs (%d) does not match state symbols (%d)", len(f), len(syms))
	}
	for i, sym := range syms {
		diff.XEqual(sym, f[i](s))
	}
	return diff
}

// explicitOnly embeds into explicit integrators to satisfy the
// Integrator interface's implicit half with ErrNotImplemented, and
// marks Kind() as explicit.
type explicitOnly struct{}

func (explicitOnly) AdvanceImplicit(state.State, float64, float64, int, state.Diffs) (state.State, error) {
	return state.State{}, ErrNotImplemented
}
func (explicitOnly) Kind() MethodKind { return MethodKindExplicit }

// EulerIntegrator is the first-order explicit Euler method:
// y <- y + h*f(t, y).
type EulerIntegrator struct{ explicitOnly }

func (*EulerIntegrator) Initialize(state.State) {}

func (*EulerIntegrator) AdvanceExplicit(yPrev state.State, h float64, tBegin float64, nSub int, f state.Diffs) state.State {
	y := yPrev.Clone()
	t := tBegin
	for i := 0; i < nSub; i++ {
		k1 := StateDiff(f, y)
		state.AddScaled(y, h, k1)
		t += h
		y.SetTime(t)
	}
	return y
}

func (*EulerIntegrator) ErrorOrder() int { return 2 }

// RK2Integrator is the explicit midpoint method:
// k1=f(t,y); k2=f(t+h/2, y+h/2*k1); y <- y + h*k2.
type RK2Integrator struct{ explicitOnly }

func (*RK2Integrator) Initialize(state.State) {}

func (*RK2Integrator) AdvanceExplicit(yPrev state.State, h float64, tBegin float64, nSub int, f state.Diffs) state.State {
	y := yPrev.Clone()
	t := tBegin
	for i := 0; i < nSub; i++ {
		k1 := StateDiff(f, y)

		mid := y.CloneBlank(t + 0.5*h)
		state.AddScaledTo(mid, y, 0.5*h, k1)
		k2 := StateDiff(f, mid)

		state.AddScaled(y, h, k2)
		t += h
		y.SetTime(t)
	}
	return y
}

func (*RK2Integrator) ErrorOrder() int { return 3 }

// RK4Integrator is the classical four-stage Runge-Kutta method.
type RK4Integrator struct{ explicitOnly }

func (*RK4Integrator) Initialize(state.State) {}

func (*RK4Integrator) AdvanceExplicit(yPrev state.State, h float64, tBegin float64, nSub int, f state.Diffs) state.State {
	const overSix = 1. / 6.
	y := yPrev.Clone()
	t := tBegin
	for i := 0; i < nSub; i++ {
		b, c, d := y.CloneBlank(t+0.5*h), y.CloneBlank(t+0.5*h), y.CloneBlank(t+h)

		a := StateDiff(f, y)

		state.AddScaledTo(b, y, 0.5*h, a)
		b = StateDiff(f, b)

		state.AddScaledTo(c, y, 0.5*h, b)
		c = StateDiff(f, c)

		state.AddScaledTo(d, y, h, c)
		d = StateDiff(f, d)

		state.Add(a, d)
		state.Add(b, c)
		state.AddScaled(a, 2, b)

		state.AddScaled(y, h*overSix, a)
		t += h
		y.SetTime(t)
	}
	return y
}

func (*RK4Integrator) ErrorOrder() int { return 4 }
