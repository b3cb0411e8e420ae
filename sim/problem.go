package sim

import (
	"fmt"
	"math"
)

const (
	maxSteadyStateIntervals = 1000
	steadyStateTol          = 1e-8
)

// Problem is the mutable model handle for one subject at a time: state,
// parameters, random effects and the per-compartment quantities declared by
// the model's Main. The driver resets it at the start of every subject.
// Not safe for concurrent use; parallel runs give each worker its own Problem.
type Problem struct {
	model Model

	defaults []float64 // run-level parameter values
	inits    []float64 // run-level initial amounts
	param    []float64

	y        []float64
	y0       []float64 // subject's initial state, restored by resets
	infusion []float64 // active zero-order input per compartment
	ninf     []int     // running infusions per compartment
	off      []bool

	f, rate, dur, alag []float64
	eta, eps           []float64
	capture            []float64

	id           float64
	time         float64
	evid         int
	newind       int
	initializing bool
	systemOff    bool
	carryOnStop  bool
	mtimes       []float64

	integ *integrator
}

// NewProblem builds a handle for m. params and inits override the model
// defaults when non-nil and of matching length.
func NewProblem(m Model, params, inits []float64, neta, neps int, cfg IntegratorConfig) *Problem {
	np := len(m.Params())
	ncmt := len(m.Compartments())
	p := &Problem{
		model:    m,
		defaults: make([]float64, np),
		inits:    make([]float64, ncmt),
		param:    make([]float64, np),
		y:        make([]float64, ncmt),
		y0:       make([]float64, ncmt),
		infusion: make([]float64, ncmt),
		ninf:     make([]int, ncmt),
		off:      make([]bool, ncmt),
		f:        make([]float64, ncmt),
		rate:     make([]float64, ncmt),
		dur:      make([]float64, ncmt),
		alag:     make([]float64, ncmt),
		eta:      make([]float64, neta),
		eps:      make([]float64, neps),
		capture:  make([]float64, len(m.Captures())),
		integ:    newIntegrator(ncmt, cfg),
	}
	for i, prm := range m.Params() {
		p.defaults[i] = prm.Value
	}
	if len(params) == np {
		copy(p.defaults, params)
	}
	for i, c := range m.Compartments() {
		p.inits[i] = c.Init
	}
	if len(inits) == ncmt {
		copy(p.inits, inits)
	}
	copy(p.param, p.defaults)
	for i := range p.f {
		p.f[i] = 1
	}
	return p
}

// Model-facing accessors.

// ID returns the current subject id.
func (p *Problem) ID() float64 { return p.id }

// Time returns the time of the current Main or Table call.
func (p *Problem) Time() float64 { return p.time }

// Evid returns the event id of the record being processed.
func (p *Problem) Evid() int { return p.evid }

// NewInd is 0 for the first record of the run, 1 for the first record of a
// later subject, and 2 otherwise.
func (p *Problem) NewInd() int { return p.newind }

// Initializing reports whether Main is being called to compute initial conditions.
func (p *Problem) Initializing() bool { return p.initializing }

// Param returns parameter i.
func (p *Problem) Param(i int) float64 { return p.param[i] }

// Eta returns between-subject random effect i, or 0 when not supplied.
func (p *Problem) Eta(i int) float64 {
	if i < 0 || i >= len(p.eta) {
		return 0
	}
	return p.eta[i]
}

// Eps returns within-subject random effect i, or 0 when not supplied.
func (p *Problem) Eps(i int) float64 {
	if i < 0 || i >= len(p.eps) {
		return 0
	}
	return p.eps[i]
}

// Y returns the amount in compartment i (0-based).
func (p *Problem) Y(i int) float64 { return p.y[i] }

// SetInit sets the initial amount of compartment i. Ignored outside initialization.
func (p *Problem) SetInit(i int, v float64) {
	if p.initializing {
		p.y[i] = v
	}
}

// SetF sets the bioavailability fraction of compartment i.
func (p *Problem) SetF(i int, v float64) { p.f[i] = v }

// SetRate sets the model-declared infusion rate of compartment i (R_CMT).
func (p *Problem) SetRate(i int, v float64) { p.rate[i] = v }

// SetDur sets the model-declared infusion duration of compartment i (D_CMT).
func (p *Problem) SetDur(i int, v float64) { p.dur[i] = v }

// SetAlag sets the lag time of compartment i.
func (p *Problem) SetAlag(i int, v float64) { p.alag[i] = v }

// SetCapture sets captured output i.
func (p *Problem) SetCapture(i int, v float64) { p.capture[i] = v }

// Capture returns captured output i.
func (p *Problem) Capture(i int) float64 { return p.capture[i] }

// StopSystem turns the system off for the rest of the subject. With
// carryForward, remaining output rows repeat the last values; otherwise they
// are filled with NaN.
func (p *Problem) StopSystem(carryForward bool) {
	p.systemOff = true
	p.carryOnStop = carryForward
}

// SystemOff reports whether the model stopped the system.
func (p *Problem) SystemOff() bool { return p.systemOff }

// AddMtime registers a milestone time. Calls outside initialization are ignored.
func (p *Problem) AddMtime(t float64) {
	if p.initializing {
		p.mtimes = append(p.mtimes, t)
	}
}

// Driver-facing operations.

// resetNewID prepares the handle for subject id.
func (p *Problem) resetNewID(id float64) {
	p.id = id
	p.newind = 1
	p.systemOff = false
	p.carryOnStop = false
	p.mtimes = p.mtimes[:0]
	for i := range p.y {
		p.y[i] = 0
		p.off[i] = false
	}
	p.clearInfusions()
	for i := range p.capture {
		p.capture[i] = 0
	}
}

// reloadParameters restores run-level parameter values.
func (p *Problem) reloadParameters() { copy(p.param, p.defaults) }

func (p *Problem) setParam(i int, v float64) { p.param[i] = v }

func (p *Problem) setEta(i int, v float64) { p.eta[i] = v }

func (p *Problem) setEps(i int, v float64) { p.eps[i] = v }

// initY loads run-level initial amounts into the state.
func (p *Problem) initY() { copy(p.y, p.inits) }

func (p *Problem) setY(i int, v float64) { p.y[i] = v }

// initCall runs Main in initialization mode at time t and snapshots the
// initial state used by resets.
func (p *Problem) initCall(t float64) {
	p.initializing = true
	p.callMain(t)
	p.initializing = false
	copy(p.y0, p.y)
}

// initCallRecord runs Main for the record at time t.
func (p *Problem) initCallRecord(t float64) { p.callMain(t) }

func (p *Problem) callMain(t float64) {
	p.time = t
	for i := range p.f {
		p.f[i] = 1
		p.rate[i] = 0
		p.dur[i] = 0
		p.alag[i] = 0
	}
	p.model.Main(p)
}

// tableCall runs Table at time t.
func (p *Problem) tableCall(t float64) {
	p.time = t
	p.model.Table(p)
}

// cmtIndex converts a signed 1-based compartment number to a state index.
func (p *Problem) cmtIndex(cmt int) (int, error) {
	i := cmt
	if i < 0 {
		i = -i
	}
	i--
	if i < 0 || i >= len(p.y) {
		return -1, fmt.Errorf("%w: cmt %d with %d compartments", ErrCompartment, cmt, len(p.y))
	}
	return i, nil
}

func (p *Problem) rhs(t float64, y, dydt []float64) {
	p.model.ODE(p, t, y, dydt)
	for i := range dydt {
		if p.off[i] {
			dydt[i] = 0
			continue
		}
		dydt[i] += p.infusion[i]
	}
}

// advance integrates the state from t0 to t1.
func (p *Problem) advance(t0, t1 float64) error {
	if t1 <= t0 {
		return nil
	}
	return p.integ.integrate(p.rhs, t0, t1, p.y)
}

// steps returns the number of accepted integrator steps.
func (p *Problem) steps() int { return p.integ.steps }

// implement applies the effect of rec to the state.
func (p *Problem) implement(rec *Record) error {
	if !rec.armed {
		return nil
	}
	switch rec.Evid {
	case EvidObservation:
		return nil
	case EvidOther:
		return p.switchCompartment(rec.Cmt)
	case EvidReset:
		p.reset()
		return nil
	case EvidInfusionEnd:
		i, err := p.cmtIndex(rec.Cmt)
		if err != nil {
			return err
		}
		p.endInfusion(i, rec.Rate)
		return nil
	case EvidResetDose:
		p.reset()
	case EvidDose:
	default:
		return nil
	}
	if rec.Ss > 0 && rec.Ii > 0 {
		if err := p.steadyState(rec); err != nil {
			return err
		}
	}
	return p.dose(rec)
}

func (p *Problem) dose(rec *Record) error {
	i, err := p.cmtIndex(rec.Cmt)
	if err != nil {
		return err
	}
	p.off[i] = false
	switch {
	case rec.IsInfusion():
		p.infusion[i] += rec.Rate
		p.ninf[i]++
	case rec.Rate <= 0:
		p.y[i] += rec.Amt * rec.Fn
	}
	return nil
}

func (p *Problem) switchCompartment(cmt int) error {
	if cmt == 0 {
		return nil
	}
	i, err := p.cmtIndex(cmt)
	if err != nil {
		return err
	}
	if cmt > 0 {
		p.off[i] = false
		return nil
	}
	p.off[i] = true
	p.y[i] = 0
	p.infusion[i] = 0
	p.ninf[i] = 0
	return nil
}

// endInfusion removes rate from compartment i. Ends left over from infusions
// cleared by a reset or a compartment-off have no effect.
func (p *Problem) endInfusion(i int, rate float64) {
	if p.ninf[i] <= 0 {
		p.ninf[i] = 0
		p.infusion[i] = 0
		return
	}
	p.ninf[i]--
	p.infusion[i] -= rate
	if p.ninf[i] == 0 || p.infusion[i] < 1e-12*rate {
		p.infusion[i] = 0
	}
}

func (p *Problem) clearInfusions() {
	for i := range p.infusion {
		p.infusion[i] = 0
		p.ninf[i] = 0
	}
}

func (p *Problem) reset() {
	copy(p.y, p.y0)
	p.clearInfusions()
	for i := range p.off {
		p.off[i] = false
	}
}

// steadyState repeats the dosing regimen of rec from an empty system until the
// pre-dose state converges. ss=1 replaces the current state; ss=2 adds to it.
func (p *Problem) steadyState(rec *Record) error {
	i, err := p.cmtIndex(rec.Cmt)
	if err != nil {
		return err
	}
	var dur float64
	if rec.IsInfusion() {
		dur = rec.Amt * rec.Fn / rec.Rate
		if dur > rec.Ii {
			return fmt.Errorf("%w: infusion duration %g exceeds interdose interval %g", ErrSteadyState, dur, rec.Ii)
		}
	}
	savedY := append([]float64(nil), p.y...)
	savedInf := append([]float64(nil), p.infusion...)
	savedN := append([]int(nil), p.ninf...)

	p.clearInfusions()
	for k := range p.y {
		p.y[k] = 0
		p.off[k] = false
	}
	prev := make([]float64, len(p.y))
	converged := false
	for n := 0; n < maxSteadyStateIntervals; n++ {
		copy(prev, p.y)
		if dur > 0 {
			p.infusion[i] += rec.Rate
			if err := p.advance(0, dur); err != nil {
				return err
			}
			p.infusion[i] = 0
			if err := p.advance(dur, rec.Ii); err != nil {
				return err
			}
		} else {
			p.y[i] += rec.Amt * rec.Fn
			if err := p.advance(0, rec.Ii); err != nil {
				return err
			}
		}
		if n > 0 && stateConverged(prev, p.y) {
			converged = true
			break
		}
	}
	if !converged {
		return fmt.Errorf("%w after %d intervals", ErrSteadyState, maxSteadyStateIntervals)
	}
	if rec.Ss == 2 {
		for k := range p.y {
			p.y[k] += savedY[k]
		}
		copy(p.infusion, savedInf)
		copy(p.ninf, savedN)
	}
	return nil
}

func stateConverged(prev, cur []float64) bool {
	for k := range cur {
		if math.Abs(cur[k]-prev[k]) > steadyStateTol*math.Abs(cur[k])+steadyStateTol {
			return false
		}
	}
	return true
}
