package state

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Jacobian approximates the Jacobian matrix of a Diffs system at state
// s by finite differences, storing the result in dst. settings may be
// nil to use gonum's defaults. Used by the implicit integrator stubs'
// Newton iteration.
func Jacobian(dst *mat.Dense, d Diffs, s State, settings *fd.JacobianSettings) *mat.Dense {
	n := len(d)
	x0 := s.XVector()
	f := func(y, x []float64) {
		sx := s.Clone()
		sx.SetAllX(x)
		for i := 0; i < len(d); i++ {
			y[i] = d[i](sx)
		}
	}
	if dst.IsEmpty() {
		*dst = *mat.NewDense(n, n, nil)
	}
	fd.Jacobian(dst, f, x0, settings)
	return dst
}
