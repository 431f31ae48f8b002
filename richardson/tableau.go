// Package richardson implements the Richardson extrapolation tableau
// (C3): a two-dimensional table of state-vector estimates computed at
// geometrically refined substep counts, extrapolated to cancel leading
// error terms and estimate local truncation error.
package richardson

import (
	"math"

	"github.com/go-numerics/richardsonsim/state"
)

// Tableau is the N x N Richardson table R[i][j] of state-vector
// estimates. Physically backed by a flat row-major buffer (spec'd
// cache-friendlier than a 2-D array of vectors), logically indexed
// R[i][j] for 0 <= i, j < N. Only the lower triangle plus diagonal
// carries meaning; R[i][0] holds the raw integrator output for
// nSub = rho^i substeps.
//
// A Tableau is owned exclusively by one worker for the duration of a
// run and must not be shared between goroutines.
type Tableau struct {
	rows  []state.State // flat buffer, length n*n
	n     int
	vecLen int
	rho   int
	rhoPow []float64 // rho^i precomputed, i in [0,n)
	h     float64
}

// InitializeSteps records the reduction factor rho and the base step h
// for the tableau about to be built.
func (t *Tableau) InitializeSteps(rho int, h float64) {
	t.rho = rho
	t.h = h
}

// BuildTables allocates an n x n table of empty states (no X variables;
// Append replaces them) and records vecLen, discarding any previous
// contents. rho^i for i in [0,n) is computed
// once here as an integer power and reused by ExtrapolateAndError,
// per the specification's guidance against calling math.Pow inside
// the inner extrapolation loop.
func (t *Tableau) BuildTables(n, vecLen int) {
	t.n, t.vecLen = n, vecLen
	t.rows = make([]state.State, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			t.rows[i*n+j] = state.New()
		}
	}
	t.rhoPow = make([]float64, n)
	pow := 1.0
	rho := float64(t.rho)
	for i := 0; i < n; i++ {
		t.rhoPow[i] = pow
		pow *= rho
	}
}

// RhoPow returns rho^i, the integer power of the reduction factor
// precomputed by BuildTables. Used by the step controller to compute
// the substep count for tableau row i.
func (t *Tableau) RhoPow(i int) int {
	return int(t.rhoPow[i] + 0.5)
}

// Append stores v at R[i][j].
func (t *Tableau) Append(i, j int, v state.State) {
	t.rows[i*t.n+j] = v
}

// At returns R[i][j].
func (t *Tableau) At(i, j int) state.State {
	return t.rows[i*t.n+j]
}

// Size returns the tableau's current dimension N.
func (t *Tableau) Size() int { return t.n }

// ExtrapolateAndError performs the Richardson recurrence across the
// table's rows and columns, returning the best estimate R[N-1][N-1],
// the normed local error ||R[N-1][N-1] - R[N-2][N-2]||_2, and the
// observed convergence exponent c = log(error)/log(h). c may be
// non-finite or negative when error >= 1 or h >= 1; callers must
// handle that (the step controller treats it as "accept and move
// on", per spec).
func (t *Tableau) ExtrapolateAndError() (best state.State, localError float64, c float64) {
	n := t.n
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			rhoPow := t.rhoPow[j+1]
			cur := t.At(i, j)
			prev := t.At(i-1, j)
			next := cur.CloneBlank(cur.Time())
			state.ScaleTo(next, rhoPow, cur)
			state.AddScaled(next, -1, prev)
			state.Scale(1/(rhoPow-1), next)
			t.Append(i, j+1, next)
		}
	}
	best = t.At(n-1, n-1)
	diff := best.CloneBlank(best.Time())
	state.SubTo(diff, best, t.At(n-2, n-2))
	localError = state.Norm(diff, 2)
	c = math.Log(localError) / math.Log(t.h)
	return best, localError, c
}

// vectorLength reports the configured state-vector length, used by
// tests to sanity-check BuildTables allocation.
func (t *Tableau) vectorLength() int { return t.vecLen }
