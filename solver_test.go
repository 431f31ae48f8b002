package richardsonsim

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/go-numerics/richardsonsim/state"
	"github.com/stretchr/testify/require"
)

func runToEnd(t *testing.T, p Params, f state.Diffs, y0 state.State, t0, tEnd float64) *Solver {
	t.Helper()
	s, err := New(p)
	require.NoError(t, err)
	s.SetOutput(nil)
	require.NoError(t, s.Run(context.Background(), f, y0, t0, tEnd))
	return s
}

// TestScenarioS1ExponentialGrowth exercises the RK4-only scenario from
// the specification's end-to-end scenario table.
func TestScenarioS1ExponentialGrowth(t *testing.T) {
	p, err := NewParams(
		WithMethods(RK4),
		WithErrorBand(1e-8, 1e-7),
		WithTableBounds(4, 6),
		WithReductionFactor(2),
		WithInitialStep(0.1),
	)
	require.NoError(t, err)

	y0 := state.New()
	y0.XEqual("y", 1)
	f := exponentialGrowthDiffs()

	s := runToEnd(t, p, f, y0, 0, 1)
	best, err := s.Results(RK4)
	require.NoError(t, err)
	require.InDelta(t, math.E, best[len(best)-1].Y.X("y"), 1e-6)
}

// TestScenarioS2ExponentialDecay is S2: y'=-y over [0,10].
func TestScenarioS2ExponentialDecay(t *testing.T) {
	p, err := NewParams(
		WithMethods(RK4),
		WithErrorBand(1e-8, 1e-7),
		WithTableBounds(4, 6),
		WithReductionFactor(2),
		WithInitialStep(0.1),
	)
	require.NoError(t, err)

	y0 := state.New()
	y0.XEqual("y", 1)
	f := state.Diffs{func(s state.State) float64 { return -s.X("y") }}

	s := runToEnd(t, p, f, y0, 0, 10)
	best, err := s.Results(RK4)
	require.NoError(t, err)
	want := math.Exp(-10)
	got := best[len(best)-1].Y.X("y")
	require.InDelta(t, 0, math.Abs(got-want)/want, 1e-3)
}

// TestScenarioS3Cosine is S3: y'=cos(t), y(0)=0 over [0, 2*pi], checked
// at t=pi/2 and at the end against the closed form y=sin(t).
func TestScenarioS3Cosine(t *testing.T) {
	p, err := NewParams(
		WithMethods(RK4),
		WithErrorBand(1e-9, 1e-8),
		WithTableBounds(4, 6),
		WithReductionFactor(2),
		WithInitialStep(0.1),
	)
	require.NoError(t, err)

	y0 := state.New()
	y0.XEqual("y", 0)
	f := state.Diffs{func(s state.State) float64 { return math.Cos(s.Time()) }}

	s := runToEnd(t, p, f, y0, 0, 2*math.Pi)
	tr, err := s.Results(RK4)
	require.NoError(t, err)

	final := tr[len(tr)-1].Y
	require.InDelta(t, 0, final.X("y"), 1e-6)

	mid, err := s.StateAt(RK4, math.Pi/2)
	require.NoError(t, err)
	require.InDelta(t, 1, mid.X("y"), 1e-6)
}

// TestScenarioS4GravityFall is S4: y'=v, v'=-9.81 with known closed form.
func TestScenarioS4GravityFall(t *testing.T) {
	p, err := NewParams(
		WithMethods(RK4),
		WithErrorBand(1e-8, 1e-6),
		WithTableBounds(4, 6),
		WithReductionFactor(2),
		WithInitialStep(0.1),
	)
	require.NoError(t, err)

	// state.NewFromXMap orders X variables alphabetically by symbol name,
	// so the X vector is [v, y] and the Diffs must follow that order.
	y0 := state.NewFromXMap(map[state.Symbol]float64{"y": 0, "v": 100})
	f := state.Diffs{
		func(s state.State) float64 { return -9.81 },
		func(s state.State) float64 { return s.X("v") },
	}

	s := runToEnd(t, p, f, y0, 0, 20)
	best, err := s.Results(RK4)
	require.NoError(t, err)
	final := best[len(best)-1].Y
	want := 100*20 - 9.81*20*20/2
	require.InDelta(t, want, final.X("y"), 1e-2)
}

// TestScenarioS5ThreeMethodsRanking is S5: three explicit methods run
// concurrently, RK4's accumulated error beats RK2's beats Euler's, and
// Best() returns RK4's trajectory.
func TestScenarioS5ThreeMethodsRanking(t *testing.T) {
	p, err := NewParams(
		WithMethods(Euler, RK2, RK4),
		WithErrorBand(1e-5, 1e-4),
		WithTableBounds(4, 6),
		WithReductionFactor(2),
		WithInitialStep(0.1),
	)
	require.NoError(t, err)

	y0 := state.New()
	y0.XEqual("y", 1)
	f := exponentialGrowthDiffs()

	s := runToEnd(t, p, f, y0, 0, 1)

	euler, err := s.Results(Euler)
	require.NoError(t, err)
	rk2, err := s.Results(RK2)
	require.NoError(t, err)
	rk4, err := s.Results(RK4)
	require.NoError(t, err)

	for _, tr := range [][]Sample{euler, rk2, rk4} {
		require.InDelta(t, math.E, tr[len(tr)-1].Y.X("y"), 5e-2)
	}
	require.Less(t, rk4[len(rk4)-1].Params.TotalError, rk2[len(rk2)-1].Params.TotalError)
	require.Less(t, rk2[len(rk2)-1].Params.TotalError, euler[len(euler)-1].Params.TotalError)

	best, err := s.Best()
	require.NoError(t, err)
	require.InDelta(t, rk4[len(rk4)-1].Y.X("y"), best[len(best)-1].Y.X("y"), 1e-12)
}

// TestScenarioS6StiffWithNoImplicitFails is S6: isStiff=true leaves the
// registry empty regardless of explicit flags.
func TestScenarioS6StiffWithNoImplicitFails(t *testing.T) {
	p, err := NewParams(
		WithMethods(Euler, RK2, RK4),
		WithProblemHints(true, false, false),
	)
	require.NoError(t, err)

	_, err = New(p)
	require.ErrorIs(t, err, ErrNoAllowedMethods)
}

// TestRunMonotoneTrajectory is property 6: times are strictly
// increasing and the last sample lands at tEnd within smallestAllowableDt.
func TestRunMonotoneTrajectory(t *testing.T) {
	p, err := NewParams(WithMethods(RK4), WithInitialStep(0.05))
	require.NoError(t, err)

	y0 := state.New()
	y0.XEqual("y", 1)
	f := exponentialGrowthDiffs()

	s := runToEnd(t, p, f, y0, 0, 2)
	tr, err := s.Results(RK4)
	require.NoError(t, err)

	for i := 1; i < len(tr); i++ {
		require.Greater(t, tr[i].Y.Time(), tr[i-1].Y.Time())
	}
	require.InDelta(t, 2.0, tr[len(tr)-1].Y.Time(), p.SmallestAllowableDt*10)
}

// TestRunThreadSafetySharedCallCounter runs three methods concurrently
// with an f that increments one shared atomic call counter. The run
// must finish without error, f must have been called, and every method
// must have recorded samples beyond its initial one.
func TestRunThreadSafetySharedCallCounter(t *testing.T) {
	var calls int64
	p, err := NewParams(WithMethods(Euler, RK2, RK4), WithInitialStep(0.1))
	require.NoError(t, err)

	y0 := state.New()
	y0.XEqual("y", 1)
	f := state.Diffs{func(s state.State) float64 {
		atomic.AddInt64(&calls, 1)
		return s.X("y")
	}}

	s := runToEnd(t, p, f, y0, 0, 1)
	require.Greater(t, atomic.LoadInt64(&calls), int64(0))

	for _, id := range []MethodID{Euler, RK2, RK4} {
		tr, err := s.Results(id)
		require.NoError(t, err)
		require.Greater(t, len(tr), 1)
	}
}
