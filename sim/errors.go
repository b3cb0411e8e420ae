package sim

import (
	"errors"
	"fmt"
)

// Configuration errors. Detected by NewSimulator before any record is processed.
var (
	ErrSortMode      = errors.New("record_sort_mode must be 1, 2, 3, or 4")
	ErrDesigns       = errors.New("insufficient number of designs specified for this problem")
	ErrDesignIndex   = errors.New("length of design indicator less than number of subjects")
	ErrRandomEffects = errors.New("random effect matrix has too few rows")
	ErrUnknownModel  = errors.New("unknown model")
	ErrCompartment   = errors.New("compartment index out of range")
	ErrOptions       = errors.New("invalid simulation options")
)

// Model-resolution errors. Raised while scheduling or implementing a record; fatal
// for the whole run.
var (
	ErrBioavailability  = errors.New("bioavailability fraction is less than zero")
	ErrInfusionRate     = errors.New("invalid infusion setting: rate (R_CMT)")
	ErrInfusionDuration = errors.New("invalid infusion setting: duration (D_CMT)")
	ErrSteadyState      = errors.New("steady state could not be reached")
)

// Integrator errors.
var (
	ErrStepTooSmall = errors.New("adaptive step size below minimum")
	ErrMaxSteps     = errors.New("maximum number of integration steps exceeded")
)

// RecordError wraps a fatal error with the record that triggered it.
type RecordError struct {
	Subject float64
	Time    float64
	Evid    int
	Wrapped error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("subject %v, time %g, evid %d: %v", e.Subject, e.Time, e.Evid, e.Wrapped)
}

func (e *RecordError) Unwrap() error {
	return e.Wrapped
}
