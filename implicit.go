package richardsonsim

import (
	"github.com/go-numerics/richardsonsim/state"
	"gonum.org/v1/exp/linsolve"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// implicitOnly embeds into implicit integrators to satisfy the explicit
// half of the Integrator interface with ErrNotImplemented, and marks
// Kind() as implicit.
type implicitOnly struct{}

func (implicitOnly) AdvanceExplicit(state.State, float64, float64, int, state.Diffs) state.State {
	panic(ErrNotImplemented)
}
func (implicitOnly) Kind() MethodKind { return MethodKindImplicit }

// ImplicitEulerIntegrator is the backward Euler method: solve for
// y_next in y_next = y_prev + h*f(t+h, y_next) by Newton iteration.
//
// It is declared to satisfy the Integrator contract and to exercise
// this module's Newton/Jacobian/GMRES stack, but the step controller
// (C5) never invokes it: stiff-system handling is out of scope for
// this core (spec §1). Ported from the teacher's NewtonRaphsonSolver.
type ImplicitEulerIntegrator struct {
	implicitOnly
	// MaxIterations bounds the Newton loop. Defaults to 10 if unset.
	MaxIterations int
	// Tolerance is the Newton convergence threshold on max|delta|.
	// Defaults to 1e-8 if unset.
	Tolerance float64
}

func (*ImplicitEulerIntegrator) Initialize(state.State) {}
func (*ImplicitEulerIntegrator) ErrorOrder() int        { return 2 }

func (im *ImplicitEulerIntegrator) AdvanceImplicit(yPrev state.State, h float64, tBegin float64, nSub int, f state.Diffs) (state.State, error) {
	maxIter := im.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	tol := im.Tolerance
	if tol <= 0 {
		tol = 1e-8
	}
	y := yPrev.Clone()
	t := tBegin
	for step := 0; step < nSub; step++ {
		t += h
		next, err := newtonSolve(y, h, t, f, maxIter, tol)
		if err != nil {
			return state.State{}, err
		}
		y = next
	}
	return y, nil
}

// CrankNicolsonIntegrator is the trapezoidal method:
// y_next = y_prev + h/2*(f(t,y_prev) + f(t+h,y_next)), solved by the
// same Newton iteration as ImplicitEulerIntegrator. Declared but unused
// by the controller for the same reason as ImplicitEulerIntegrator.
type CrankNicolsonIntegrator struct {
	implicitOnly
	MaxIterations int
	Tolerance     float64
}

func (*CrankNicolsonIntegrator) Initialize(state.State) {}
func (*CrankNicolsonIntegrator) ErrorOrder() int        { return 3 }

func (cn *CrankNicolsonIntegrator) AdvanceImplicit(yPrev state.State, h float64, tBegin float64, nSub int, f state.Diffs) (state.State, error) {
	maxIter := cn.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	tol := cn.Tolerance
	if tol <= 0 {
		tol = 1e-8
	}
	y := yPrev.Clone()
	t := tBegin
	for step := 0; step < nSub; step++ {
		fNow := StateDiff(f, y)
		tNext := t + h
		next, err := trapezoidSolve(y, fNow, h, tNext, f, maxIter, tol)
		if err != nil {
			return state.State{}, err
		}
		y = next
		t = tNext
	}
	return y, nil
}

// newtonSolve solves y_next - y_now - h*f(t_next, y_next) = 0 for
// y_next by Newton iteration (full, undamped steps), building the Jacobian by finite
// differences and solving the linear system with GMRES.
func newtonSolve(yNow state.State, h, tNext float64, f state.Diffs, maxIter int, tol float64) (state.State, error) {
	n := len(f)
	guess := yNow.Clone()
	guess.SetTime(tNext)
	residual := func(next state.State) state.State {
		r := next.Clone()
		fnext := StateDiff(f, next)
		state.Sub(r, yNow)
		state.AddScaled(r, -h, fnext)
		return r
	}
	for iter := 0; iter < maxIter; iter++ {
		b := mat.NewVecDense(n, residual(guess).XVector())
		jac := mat.NewDense(n, n, nil)
		state.Jacobian(jac, f, guess, (*fd.JacobianSettings)(nil))
		J := denseToBand(jac, h)

		result, err := linsolve.Iterative(J, b, &linsolve.GMRES{}, &linsolve.Settings{MaxIterations: 50})
		if err != nil {
			return state.State{}, err
		}
		delta := result.X.RawVector().Data
		next := guess.Clone()
		nv := next.XVector()
		maxDelta := 0.0
		for i := range nv {
			nv[i] -= delta[i]
			if d := delta[i]; d > maxDelta {
				maxDelta = d
			} else if -d > maxDelta {
				maxDelta = -d
			}
		}
		next.SetAllX(nv)
		guess = next
		if maxDelta < tol {
			return guess, nil
		}
	}
	return guess, nil
}

// trapezoidSolve solves the Crank-Nicolson update given the rate of
// change fNow already evaluated at the current state.
func trapezoidSolve(yNow, fNow state.State, h, tNext float64, f state.Diffs, maxIter int, tol float64) (state.State, error) {
	n := len(f)
	guess := yNow.Clone()
	guess.SetTime(tNext)
	residual := func(next state.State) state.State {
		r := next.Clone()
		fnext := StateDiff(f, next)
		state.Add(fnext, fNow)
		state.Sub(r, yNow)
		state.AddScaled(r, -h/2, fnext)
		return r
	}
	for iter := 0; iter < maxIter; iter++ {
		b := mat.NewVecDense(n, residual(guess).XVector())
		jac := mat.NewDense(n, n, nil)
		state.Jacobian(jac, f, guess, (*fd.JacobianSettings)(nil))
		J := denseToBand(jac, h/2)

		result, err := linsolve.Iterative(J, b, &linsolve.GMRES{}, &linsolve.Settings{MaxIterations: 50})
		if err != nil {
			return state.State{}, err
		}
		delta := result.X.RawVector().Data
		next := guess.Clone()
		nv := next.XVector()
		maxDelta := 0.0
		for i := range nv {
			nv[i] -= delta[i]
			if d := delta[i]; d > maxDelta {
				maxDelta = d
			} else if -d > maxDelta {
				maxDelta = -d
			}
		}
		next.SetAllX(nv)
		guess = next
		if maxDelta < tol {
			return guess, nil
		}
	}
	return guess, nil
}

// denseToBand converts the Jacobian of f into the banded system
// (I - h*dF/dY) expected by the Newton step, ported from the teacher's
// denseToBand in algorithms.go.
func denseToBand(jac *mat.Dense, h float64) *mat.BandDense {
	r, c := jac.Dims()
	b := mat.NewBandDense(r, c, r-1, c-1, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := -h * jac.At(i, j)
			if i == j {
				v += 1
			}
			b.SetBand(i, j, v)
		}
	}
	return b
}
