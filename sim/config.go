package sim

import "fmt"

// SortMode selects how same-time records are ordered.
//
//	1: grid observations before dataset events, additional doses first (default)
//	2: grid observations before dataset events, additional doses last
//	3: dataset events before grid observations, additional doses first
//	4: dataset events before grid observations, additional doses last
type SortMode int

// Valid reports whether m is one of the four recognized policies.
func (m SortMode) Valid() bool { return m >= 1 && m <= 4 }

// EventsFirst reports whether dataset events sort ahead of same-time grid observations.
func (m SortMode) EventsFirst() bool { return m == 3 || m == 4 }

// AddlFirst reports whether generated additional doses sort ahead of same-time records.
func (m SortMode) AddlFirst() bool { return m == 1 || m == 3 }

// IntegratorConfig groups ODE solver settings.
type IntegratorConfig struct {
	RTol     float64 `yaml:"rtol"`     // relative tolerance (> 0)
	ATol     float64 `yaml:"atol"`     // absolute tolerance (> 0)
	HMax     float64 `yaml:"hmax"`     // maximum step size, 0 = unbounded
	MaxSteps int     `yaml:"maxsteps"` // maximum accepted steps per Advance call
}

// Options is the run configuration consumed by the simulator.
type Options struct {
	Verbose             bool      `yaml:"verbose"`
	Debug               bool      `yaml:"debug"`
	Digits              int       `yaml:"digits"`               // significant digits for outputs, 0 = no rounding
	TimeScale           float64   `yaml:"time_scale"`           // multiplier for the time column; ignored if < 0 or == 1
	ObservationsOnly    bool      `yaml:"observations_only"`    // drop event rows from the output
	AugmentObservations bool      `yaml:"augment_observations"` // add grid observations to dataset observations
	RecordSortMode      SortMode  `yaml:"record_sort_mode"`
	FileFillBack        bool      `yaml:"file_fill_back"`    // use the subject's first dataset row when the first record is generated
	MinimumTimeStep     float64   `yaml:"minimum_time_step"` // relative step below which advancing is skipped
	Mtimes              []float64 `yaml:"mtimes"`            // extra milestone times merged into every subject
	Workers             int       `yaml:"workers"`           // subjects simulated concurrently, <= 1 = sequential

	Integrator IntegratorConfig `yaml:"integrator"`
}

// DefaultOptions returns options matching the reference defaults.
func DefaultOptions() Options {
	return Options{
		TimeScale:      1,
		RecordSortMode: 1,
		Workers:        1,
		Integrator: IntegratorConfig{
			RTol:     1e-8,
			ATol:     1e-8,
			MaxSteps: 20000,
		},
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if !o.RecordSortMode.Valid() {
		return fmt.Errorf("%w (got %d)", ErrSortMode, o.RecordSortMode)
	}
	if o.Digits < 0 {
		return fmt.Errorf("%w: digits must be >= 0, got %d", ErrOptions, o.Digits)
	}
	if o.MinimumTimeStep < 0 {
		return fmt.Errorf("%w: minimum_time_step must be >= 0, got %g", ErrOptions, o.MinimumTimeStep)
	}
	if o.Integrator.RTol <= 0 || o.Integrator.ATol <= 0 {
		return fmt.Errorf("%w: rtol and atol must be > 0, got %g and %g", ErrOptions, o.Integrator.RTol, o.Integrator.ATol)
	}
	if o.Integrator.HMax < 0 {
		return fmt.Errorf("%w: hmax must be >= 0, got %g", ErrOptions, o.Integrator.HMax)
	}
	if o.Integrator.MaxSteps <= 0 {
		return fmt.Errorf("%w: maxsteps must be > 0, got %d", ErrOptions, o.Integrator.MaxSteps)
	}
	return nil
}
