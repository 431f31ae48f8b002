package richardsonsim

import (
	"math"
	"testing"

	"github.com/go-numerics/richardsonsim/richardson"
	"github.com/go-numerics/richardsonsim/state"
	"github.com/stretchr/testify/require"
)

func newTestParams(t *testing.T) Params {
	t.Helper()
	p, err := NewParams(
		WithErrorBand(1e-6, 1e-4),
		WithStepBounds(0.5, 1.5, 1e-6),
		WithTableBounds(2, 6),
		WithReductionFactor(2),
		WithInitialStep(0.1),
	)
	require.NoError(t, err)
	return p
}

func TestUpdateDtStepClamping(t *testing.T) {
	p := newTestParams(t)
	p.Dt = 1.0
	cont := updateDt(&p, true, 0.95, 1.0)
	require.True(t, cont)
	require.InDelta(t, 0.05, p.Dt, 1e-12)
	require.True(t, p.LastRun)
	require.Equal(t, p.MaxTableSize, p.CurrentTableSize)
}

func TestUpdateDtDoesNotClampWhenStepFits(t *testing.T) {
	p := newTestParams(t)
	p.Dt = 0.1
	cont := updateDt(&p, true, 0.0, 1.0)
	require.True(t, cont)
	require.False(t, p.LastRun)
	require.InDelta(t, 0.1, p.Dt, 1e-12)
}

func TestUpdateDtTableauBoundsAcrossManyIterations(t *testing.T) {
	p := newTestParams(t)
	updateDt(&p, true, 0, 10)
	for i := 0; i < 200; i++ {
		p.CurrentError = math.Pow(10, -float64(3+i%7))
		p.C = 3
		updateDt(&p, false, 0, 10)
		require.GreaterOrEqual(t, p.CurrentTableSize, p.MinTableSize)
		require.LessOrEqual(t, p.CurrentTableSize, p.MaxTableSize)
		require.GreaterOrEqual(t, p.Dt, p.SmallestAllowableDt)
		if p.SatisfiesError {
			updateDt(&p, true, 0, 10)
		}
	}
}

func TestUpdateDtFinalPassSatisfiesErrorReflectsThreshold(t *testing.T) {
	p := newTestParams(t)
	p.LastRun = true
	p.CurrentError = p.UpperError * 2
	cont := updateDt(&p, false, 0, 1)
	require.False(t, cont)
	require.False(t, p.SatisfiesError)

	p2 := newTestParams(t)
	p2.LastRun = true
	p2.CurrentError = p2.UpperError / 2
	updateDt(&p2, false, 0, 1)
	require.True(t, p2.SatisfiesError)
}

func TestUpdateDtNonFiniteConvergenceAcceptsAndMovesOn(t *testing.T) {
	p := newTestParams(t)
	p.CurrentError = 1e-3
	p.C = math.NaN()
	cont := updateDt(&p, false, 0, 10)
	require.False(t, cont)
	require.True(t, p.SatisfiesError)
}

// TestAdvanceOneStepOrderImprovement exercises property 3: for
// f(t,y)=y, the Richardson-extrapolated estimate over h=0.1 is far
// closer to the analytic solution than a raw single Euler substep
// would be.
func TestAdvanceOneStepOrderImprovement(t *testing.T) {
	p, err := NewParams(
		WithErrorBand(1e-6, 1e-5),
		WithStepBounds(0.5, 1.5, 1e-8),
		WithTableBounds(4, 6),
		WithReductionFactor(2),
		WithInitialStep(0.1),
	)
	require.NoError(t, err)

	tab := &richardson.Tableau{}
	method := &EulerIntegrator{}
	y0 := state.New()
	y0.XEqual("y", 1)
	f := exponentialGrowthDiffs()

	yNext, err := advanceOneStep(method, tab, &p, y0, 0, 0.1, f)
	require.NoError(t, err)

	want := math.Exp(0.1)
	rawEulerErr := math.Abs(1+0.1*1 - want)
	extrapolatedErr := math.Abs(yNext.X("y") - want)
	require.Less(t, extrapolatedErr, rawEulerErr/100)
}
