package richardsonsim

import (
	"github.com/pkg/errors"

	"github.com/go-numerics/richardsonsim/state"
)

// Sample is one accepted point of a method's trajectory (C7): the
// state vector at accept time plus the Params snapshot that produced
// it. Invariant: within a trajectory, samples are strictly increasing
// in Y.Time().
type Sample struct {
	Y      state.State
	Params Params
}

// trajectory is the ordered, append-only sample sequence for one
// installed method. Appends happen only from that method's worker
// goroutine during Run; readers must only observe a trajectory after
// Run has returned.
type trajectory []Sample

func (tr trajectory) finalTotalError() float64 {
	if len(tr) == 0 {
		return 0
	}
	return tr[len(tr)-1].Params.TotalError
}

// Results returns the recorded trajectory for the given method,
// oldest sample first. Fails with ErrUnknownMethod if id was never
// installed (or Run has not been called).
func (s *Solver) Results(id MethodID) ([]Sample, error) {
	s.mu.Lock()
	tr, ok := s.trajectories[id]
	s.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "method id %v", id)
	}
	out := make([]Sample, len(tr))
	copy(out, tr)
	return out, nil
}

// Best returns the trajectory with the smallest final TotalError
// across all installed methods.
func (s *Solver) Best() ([]Sample, error) {
	id, err := s.bestMethod()
	if err != nil {
		return nil, err
	}
	return s.Results(id)
}

func (s *Solver) bestMethod() (MethodID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.trajectories) == 0 {
		return 0, errors.Wrap(ErrUnknownMethod, "no methods installed")
	}
	var best MethodID
	bestErr := -1.0
	for id, tr := range s.trajectories {
		e := tr.finalTotalError()
		if bestErr < 0 || e < bestErr {
			best, bestErr = id, e
		}
	}
	return best, nil
}

// StateAt returns the state of the given method's trajectory at time
// tau, clamping to the first/last sample outside the recorded range
// and linearly interpolating Y, TotalError, CurrentError and
// CurrentRunTime between the bracketing samples otherwise. The
// returned sample's other Params fields come from the later
// bracketing sample.
func (s *Solver) StateAt(id MethodID, tau float64) (Sample, error) {
	s.mu.Lock()
	tr, ok := s.trajectories[id]
	s.mu.Unlock()
	if !ok {
		return Sample{}, errors.Wrapf(ErrUnknownMethod, "method id %v", id)
	}
	return interpolate(tr, tau)
}

// BestStateAt interpolates the trajectory of the method with the
// smallest final TotalError at time tau.
func (s *Solver) BestStateAt(tau float64) (Sample, error) {
	id, err := s.bestMethod()
	if err != nil {
		return Sample{}, err
	}
	return s.StateAt(id, tau)
}

func interpolate(tr trajectory, tau float64) (Sample, error) {
	if len(tr) == 0 {
		return Sample{}, errors.Wrap(ErrUnknownTime, "empty trajectory")
	}
	if tau <= tr[0].Y.Time() {
		return tr[0], nil
	}
	last := tr[len(tr)-1]
	if tau >= last.Y.Time() {
		return last, nil
	}

	for i := 1; i < len(tr); i++ {
		left, right := tr[i-1], tr[i]
		if tau < left.Y.Time() || tau > right.Y.Time() {
			continue
		}
		span := right.Y.Time() - left.Y.Time()
		if span <= 0 {
			return right, nil
		}
		frac := (tau - left.Y.Time()) / span

		y := left.Y.Clone()
		ly, ry := left.Y.XVector(), right.Y.XVector()
		blended := make([]float64, len(ly))
		for k := range ly {
			blended[k] = ly[k] + frac*(ry[k]-ly[k])
		}
		y.SetAllX(blended)
		y.SetTime(tau)

		p := right.Params
		p.TotalError = left.Params.TotalError + frac*(right.Params.TotalError-left.Params.TotalError)
		p.CurrentError = left.Params.CurrentError + frac*(right.Params.CurrentError-left.Params.CurrentError)
		p.CurrentRunTime = left.Params.CurrentRunTime + frac*(right.Params.CurrentRunTime-left.Params.CurrentRunTime)
		p.CurrentTime = tau

		return Sample{Y: y, Params: p}, nil
	}
	return Sample{}, errors.Wrapf(ErrUnknownTime, "tau=%g not bracketed in trajectory of length %d", tau, len(tr))
}
