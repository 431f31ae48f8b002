package richardsonsim

import (
	"io"
	"math"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// dlamchE is the machine epsilon. For IEEE-754 float64 this is 2^-53.
// Carried over from the teacher's Timespan step-size sanity check.
const dlamchE = 1.0 / (1 << 53)

// Params is the parameter record (C1): configuration fixed at
// construction time, plus per-run mutable control state advanced by
// the step controller. A Params is cheap to copy (no pointers or
// slices in its fields), which the method registry relies on to give
// each installed method its own private scoped copy.
type Params struct {
	// Method-enable flags.
	UseEuler         bool `yaml:"useEuler"`
	UseRK2           bool `yaml:"useRK2"`
	UseRK4           bool `yaml:"useRK4"`
	UseImplicitEuler bool `yaml:"useImplicitEuler"`
	UseCrank         bool `yaml:"useCrank"`

	// Problem hints, consulted by the method registry (C4).
	IsStiff bool `yaml:"isStiff"`
	IsLarge bool `yaml:"isLarge"`
	IsFast  bool `yaml:"isFast"`

	// Error band. Invariant: UpperError > LowerError > 0, both finite.
	LowerError float64 `yaml:"lowerError"`
	UpperError float64 `yaml:"upperError"`

	// Step bounds. MinDt and MaxDt are multiplicative upgrade/downgrade
	// clamps applied to the step-size adjustment factor each iteration,
	// not absolute bounds on h. SmallestAllowableDt is the absolute
	// floor on h. Invariant: 0 < MinDt < MaxDt.
	MinDt               float64 `yaml:"minDt"`
	MaxDt               float64 `yaml:"maxDt"`
	SmallestAllowableDt float64 `yaml:"smallestAllowableDt"`

	// Tableau bounds. Invariant: 1 < MinTableSize < MaxTableSize.
	MinTableSize     int `yaml:"minTableSize"`
	MaxTableSize     int `yaml:"maxTableSize"`
	CurrentTableSize int `yaml:"currentTableSize"`

	// ReductionFactor is rho: at tableau row i the integrator takes
	// rho^i substeps. Invariant: ReductionFactor > 1.
	ReductionFactor int `yaml:"reductionFactor"`

	// Live state, advanced by the step controller (C5) across calls to
	// advanceOneStep. Not meant to be set directly by callers except
	// through defaults/options at construction time.
	Dt             float64 `yaml:"dt"`
	C              float64 `yaml:"c"`
	CurrentError   float64 `yaml:"-"`
	TotalError     float64 `yaml:"-"`
	CurrentTime    float64 `yaml:"-"`
	CurrentRunTime float64 `yaml:"-"`
	UpgradeFactor  float64 `yaml:"-"`
	SatisfiesError bool    `yaml:"-"`
	LastRun        bool    `yaml:"-"`
	IsDtClamped    bool    `yaml:"-"`
}

// ParamOption configures a Params at construction time.
type ParamOption func(*Params)

// WithMethods enables the given solver methods, explicit or implicit.
// Disables all others not listed.
func WithMethods(ids ...MethodID) ParamOption {
	return func(p *Params) {
		p.UseEuler, p.UseRK2, p.UseRK4 = false, false, false
		p.UseImplicitEuler, p.UseCrank = false, false
		for _, id := range ids {
			switch id {
			case Euler:
				p.UseEuler = true
			case RK2:
				p.UseRK2 = true
			case RK4:
				p.UseRK4 = true
			case ImplicitEuler:
				p.UseImplicitEuler = true
			case CrankNicolson:
				p.UseCrank = true
			}
		}
	}
}

// WithErrorBand sets the target local-error band. upper must exceed lower.
func WithErrorBand(lower, upper float64) ParamOption {
	return func(p *Params) { p.LowerError, p.UpperError = lower, upper }
}

// WithStepBounds sets the multiplicative step clamps and the absolute
// step floor.
func WithStepBounds(minDt, maxDt, smallest float64) ParamOption {
	return func(p *Params) {
		p.MinDt, p.MaxDt, p.SmallestAllowableDt = minDt, maxDt, smallest
	}
}

// WithTableBounds sets the Richardson tableau depth bounds.
func WithTableBounds(min, max int) ParamOption {
	return func(p *Params) { p.MinTableSize, p.MaxTableSize = min, max }
}

// WithReductionFactor sets rho, the Richardson step-reduction factor.
func WithReductionFactor(rho int) ParamOption {
	return func(p *Params) { p.ReductionFactor = rho }
}

// WithInitialStep sets the initial step size attempted for the first
// call to advanceOneStep.
func WithInitialStep(dt float64) ParamOption {
	return func(p *Params) { p.Dt = dt }
}

// WithProblemHints marks the problem as stiff, large and/or fast-evolving;
// these flags steer which methods the registry installs (C4).
func WithProblemHints(stiff, large, fast bool) ParamOption {
	return func(p *Params) { p.IsStiff, p.IsLarge, p.IsFast = stiff, large, fast }
}

// defaultParams returns the normative defaults from the specification:
// Euler only, error band [1e-4, 1e-3], step clamps [0.01, 0.1], table
// depth [4, 8], rho=2, floor 1e-5, initial dt 0.01.
func defaultParams() Params {
	return Params{
		UseEuler:            true,
		LowerError:          1e-4,
		UpperError:          1e-3,
		MinDt:               0.01,
		MaxDt:               0.1,
		SmallestAllowableDt: 1e-5,
		MinTableSize:        4,
		MaxTableSize:        8,
		ReductionFactor:     2,
		Dt:                  0.01,
		C:                   -1,
	}
}

// NewParams builds a validated Params record, applying opts over the
// specification's defaults. Returns ErrInvalidConfig if any invariant
// in the Params doc comment is violated.
func NewParams(opts ...ParamOption) (Params, error) {
	p := defaultParams()
	for _, opt := range opts {
		opt(&p)
	}
	p.CurrentTableSize = p.MinTableSize
	if err := p.validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// LoadParamsYAML reads a YAML document into a Params, applying the
// specification's defaults for any field the document omits, then
// validates the result.
func LoadParamsYAML(r io.Reader) (Params, error) {
	p := defaultParams()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return Params{}, errors.Wrap(err, "richardsonsim: decode params yaml")
	}
	if p.CurrentTableSize == 0 {
		p.CurrentTableSize = p.MinTableSize
	}
	if err := p.validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

func (p Params) validate() error {
	switch {
	case !(p.LowerError > 0) || !(p.UpperError > p.LowerError) || math.IsInf(p.UpperError, 0) || math.IsInf(p.LowerError, 0):
		return errors.Wrap(ErrInvalidConfig, "error band must satisfy 0 < lowerError < upperError, both finite")
	case !(p.MinDt > 0) || !(p.MaxDt > p.MinDt):
		return errors.Wrap(ErrInvalidConfig, "step clamps must satisfy 0 < minDt < maxDt")
	case !(p.SmallestAllowableDt > 0):
		return errors.Wrap(ErrInvalidConfig, "smallestAllowableDt must be positive")
	case !(p.MinTableSize > 1) || !(p.MaxTableSize > p.MinTableSize):
		return errors.Wrap(ErrInvalidConfig, "tableau bounds must satisfy 1 < minTableSize < maxTableSize")
	case p.ReductionFactor <= 1:
		return errors.Wrap(ErrInvalidConfig, "reductionFactor must be greater than 1")
	case p.Dt <= 0:
		return errors.Wrap(ErrInvalidConfig, "dt must be positive")
	}
	if p.Dt < 2*dlamchE {
		return errors.Wrapf(ErrInvalidConfig, "dt %e is smaller than machine precision", p.Dt)
	}
	return nil
}

// snapshot returns a value copy of p suitable for attaching to a
// Sample: Go structs are copied by value so this is just p itself,
// named for readability at call sites.
func (p Params) snapshot() Params { return p }
