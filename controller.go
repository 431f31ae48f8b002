package richardsonsim

import (
	"math"
	"time"

	"github.com/go-numerics/richardsonsim/richardson"
	"github.com/go-numerics/richardsonsim/state"
)

// advanceOneStep is the step controller (C5), the heart of the system:
// given the current state and the [tBegin, tEnd) window, it iteratively
// refines the step size h (p.Dt) and tableau depth k (p.CurrentTableSize)
// until the Richardson-extrapolated local error satisfies p's error
// band, then returns the accepted next state. p is mutated in place to
// carry the live control state (dt, c, currentError, totalError, ...)
// forward to the caller's next call.
//
// tab is reused across calls; it is rebuilt (InitializeSteps+BuildTables)
// every iteration of the inner loop since h and k can change between
// iterations.
func advanceOneStep(method Integrator, tab *richardson.Tableau, p *Params, yCur state.State, tBegin, tEnd float64, f state.Diffs) (state.State, error) {
	p.SatisfiesError = false
	p.C = float64(method.ErrorOrder() + p.MinTableSize)

	updateDt(p, true, tBegin, tEnd)

	wallBegin := time.Now()

	var yNext state.State
	for {
		tab.InitializeSteps(p.ReductionFactor, p.Dt)
		tab.BuildTables(p.CurrentTableSize, yCur.Len())

		for i := 0; i < p.CurrentTableSize; i++ {
			nSub := tab.RhoPow(i)
			hRow := p.Dt / float64(nSub)
			r := method.AdvanceExplicit(yCur, hRow, tBegin, nSub, f)
			tab.Append(i, 0, r)
		}

		var c float64
		yNext, p.CurrentError, c = tab.ExtrapolateAndError()
		p.C = c

		if !updateDt(p, false, tBegin, tEnd) {
			break
		}
	}

	p.CurrentRunTime += time.Since(wallBegin).Seconds()
	return yNext, nil
}

// updateDt advances p's step-size and tableau-depth control state for
// one pass of advanceOneStep's inner loop, implementing the
// specification's three phases (first pass, iteration pass, final
// pass). It returns whether the caller should re-enter the inner loop
// (true) or accept the current estimate and stop (false).
func updateDt(p *Params, firstPass bool, tBegin, tEnd float64) bool {
	if firstPass {
		if !p.IsStiff && !p.IsFast && !p.IsDtClamped {
			p.CurrentTableSize = p.MinTableSize
		}
		if p.UpgradeFactor > 1 {
			p.Dt *= p.UpgradeFactor
		}
		p.SatisfiesError = false
		p.LastRun = false
		p.IsDtClamped = false

		if p.Dt+tBegin > tEnd {
			p.Dt = tEnd - tBegin
			p.CurrentTableSize = p.MaxTableSize
			p.LastRun = true
		}
		return true
	}

	if p.LastRun {
		p.SatisfiesError = p.CurrentError <= p.UpperError
		p.TotalError += p.CurrentError
		return false
	}

	globalError := p.TotalError + math.Floor((tEnd-tBegin)/p.Dt)*p.CurrentError

	if globalError > p.UpperError && isFiniteAndPositive(p.C) && !p.IsDtClamped {
		desired := clamp(math.Pow(p.UpperError/globalError, 1/p.C), p.MinDt, p.MaxDt)
		p.Dt *= 0.9 * desired
		if p.CurrentTableSize+1 > p.MaxTableSize {
			p.CurrentTableSize = p.MaxTableSize
		} else {
			p.CurrentTableSize++
		}
		if p.Dt < p.SmallestAllowableDt {
			p.Dt = p.SmallestAllowableDt
			p.IsDtClamped = true
		}
		return true
	}

	desired := clamp(math.Pow(p.UpperError/p.CurrentError, 1/p.C), p.MinDt, p.MaxDt)
	p.UpgradeFactor = desired
	if globalError <= p.LowerError {
		desired = clamp(math.Pow(p.LowerError/p.CurrentError, 1/p.C), p.MinDt, p.MaxDt)
		p.UpgradeFactor = desired
		if p.CurrentTableSize-1 < p.MinTableSize {
			p.CurrentTableSize = p.MinTableSize
		} else {
			p.CurrentTableSize--
		}
	}
	p.SatisfiesError = true
	p.TotalError += p.CurrentError
	return false
}

func isFiniteAndPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
