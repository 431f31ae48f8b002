package richardsonsim

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/go-numerics/richardsonsim/state"
)

// progressSnapshot is the value a worker publishes for the progress
// monitor to read. Published atomically so the monitor never observes
// a torn read of the two fields together; the monitor is purely
// observational and tolerates a stale snapshot.
type progressSnapshot struct {
	currentTime float64
	lastRun     bool
}

// Solver is the concurrent multi-method driver (C6): one goroutine per
// installed method plus a progress-monitor goroutine, reporting into a
// per-method result store (C7).
//
// A Solver must not be reused across overlapping calls to Run; call
// Refresh between runs with a new Params to reset its state.
type Solver struct {
	params Params
	reg    *registry
	logger *Logger

	mu           sync.Mutex
	trajectories map[MethodID]trajectory
	progress     map[MethodID]*atomic.Value
}

// New constructs a Solver from a validated Params. Params itself is
// validated at construction (NewParams/LoadParamsYAML); New only
// rejects a Params whose registry would come up empty.
func New(p Params) (*Solver, error) {
	reg, err := newRegistry(p)
	if err != nil {
		return nil, err
	}
	return &Solver{
		params:       p,
		reg:          reg,
		logger:       newLogger(os.Stderr),
		trajectories: make(map[MethodID]trajectory),
		progress:     make(map[MethodID]*atomic.Value),
	}, nil
}

// SetOutput redirects the Solver's progress log, the teacher's
// Logger.Output field exposed at the Solver boundary.
func (s *Solver) SetOutput(w io.Writer) { s.logger.Output = w }

// Refresh clears methods, parameter copies and trajectories, then
// rebuilds the registry from p. Returns ErrNoAllowedMethods if p's
// hints and flags would install nothing.
func (s *Solver) Refresh(p Params) error {
	reg, err := newRegistry(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	s.reg = reg
	s.trajectories = make(map[MethodID]trajectory)
	s.progress = make(map[MethodID]*atomic.Value)
	return nil
}

// Run integrates f from y0 at t0 to tEnd with every installed method
// concurrently, one worker goroutine per method plus a progress
// monitor. It returns once every worker has completed or ctx is
// cancelled; a worker that panics (user f panicking, or an internal
// invariant violation) is recovered and reported as part of the
// returned error without affecting sibling workers.
func (s *Solver) Run(ctx context.Context, f state.Diffs, y0 state.State, t0, tEnd float64) error {
	s.reg.initializeAll(y0)

	ids := s.reg.ids()
	s.mu.Lock()
	for _, id := range ids {
		s.trajectories[id] = trajectory{{Y: y0.Clone(), Params: s.reg.entries[id].params.snapshot()}}
		v := &atomic.Value{}
		v.Store(progressSnapshot{currentTime: t0})
		s.progress[id] = v
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	errc := make(chan error, len(ids))

	for _, id := range ids {
		wg.Add(1)
		go func(id MethodID) {
			defer wg.Done()
			errc <- s.runWorker(ctx, id, f, y0, t0, tEnd)
		}(id)
	}

	done := make(chan struct{})
	go func() {
		s.monitorProgress(ids, tEnd, done)
	}()

	wg.Wait()
	close(done)
	close(errc)
	s.logger.Flush()

	var errs []error
	for err := range errc {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrapf(combineErrors(errs), "richardsonsim: %d of %d workers failed", len(errs), len(ids))
	}
	return nil
}

func (s *Solver) runWorker(ctx context.Context, id MethodID, f state.Diffs, y0 state.State, t0, tEnd float64) (err error) {
	entry := s.reg.entries[id]
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("richardsonsim: method %v worker panicked: %v", id, r)
		}
	}()

	y := y0.Clone()
	t := t0
	p := &entry.params

	for t < tEnd {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		y, err = advanceOneStep(entry.integrator, entry.tableau, p, y, t, tEnd, f)
		if err != nil {
			return errors.Wrapf(err, "method %v", id)
		}
		t += p.Dt
		p.CurrentTime = t

		sample := Sample{Y: y.Clone(), Params: p.snapshot()}
		s.mu.Lock()
		s.trajectories[id] = append(s.trajectories[id], sample)
		s.mu.Unlock()

		s.progress[id].Store(progressSnapshot{currentTime: t, lastRun: p.LastRun})
	}
	return nil
}

// monitorProgress periodically logs each worker's published progress
// until every worker has reached lastRun or done is closed, mirroring
// the teacher's StepDelay-paced status reporting.
func (s *Solver) monitorProgress(ids []MethodID, tEnd float64, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			allDone := true
			for _, id := range ids {
				v, ok := s.progress[id].Load().(progressSnapshot)
				if !ok {
					allDone = false
					continue
				}
				s.logger.Progress(id, v.currentTime, tEnd)
				if !v.lastRun {
					allDone = false
				}
			}
			if allDone {
				return
			}
		}
	}
}

func combineErrors(errs []error) error {
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return errors.New(msg)
}
