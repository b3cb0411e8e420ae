// Package model provides the built-in compartmental pharmacokinetic models.
// Models are stateless: every per-subject quantity is read from the Problem,
// so one instance can serve concurrent workers.
//
// Between-subject effects scale the typical values exponentially:
// ETA1 on CL, ETA2 on V, ETA3 on KA. EPS1 is a proportional residual on DV.
package model

import (
	"math"
	"strconv"

	"github.com/inference-sim/popsim/sim"
)

const (
	PK1Name    = "pk1cmt"
	PK2Name    = "pk2cmt"
	PKStopName = "pkstop"
)

// Compartment order shared by all built-in models.
const (
	Depot = iota
	Central
	Peripheral
)

// PK is a first-order absorption model with one or two disposition
// compartments, optionally stopping the system at time TSTOP.
type PK struct {
	name   string
	params []sim.Param
	cmts   []sim.Compartment

	cl, v, ka, q, vp int
	f, alag, r, d    []int // per compartment
	tstop, cfonstop  int
}

// NewPK1 returns the one-compartment model with depot and central compartments.
func NewPK1() *PK {
	return newPK(PK1Name, false, false)
}

// NewPK2 adds a peripheral compartment with clearance Q and volume VP.
func NewPK2() *PK {
	return newPK(PK2Name, true, false)
}

// NewPKStop is the one-compartment model that turns the system off from
// TSTOP onwards. CFONSTOP != 0 carries the last values forward.
func NewPKStop() *PK {
	return newPK(PKStopName, false, true)
}

func newPK(name string, peripheral, stop bool) *PK {
	m := &PK{name: name, q: -1, vp: -1, tstop: -1, cfonstop: -1}
	add := func(n string, v float64) int {
		m.params = append(m.params, sim.Param{Name: n, Value: v})
		return len(m.params) - 1
	}
	m.cl = add("CL", 1)
	m.v = add("V", 20)
	m.ka = add("KA", 1)
	m.cmts = []sim.Compartment{{Name: "DEPOT"}, {Name: "CENT"}}
	if peripheral {
		m.q = add("Q", 2)
		m.vp = add("VP", 40)
		m.cmts = append(m.cmts, sim.Compartment{Name: "PERIPH"})
	}
	for i := range m.cmts {
		n := strconv.Itoa(i + 1)
		m.f = append(m.f, add("F"+n, 1))
		m.alag = append(m.alag, add("ALAG"+n, 0))
		m.r = append(m.r, add("R"+n, 0))
		m.d = append(m.d, add("D"+n, 0))
	}
	if stop {
		m.tstop = add("TSTOP", math.Inf(1))
		m.cfonstop = add("CFONSTOP", 0)
	}
	return m
}

func (m *PK) Name() string                    { return m.name }
func (m *PK) Params() []sim.Param             { return m.params }
func (m *PK) Compartments() []sim.Compartment { return m.cmts }
func (m *PK) Captures() []string              { return []string{"CP", "DV"} }

// Main declares bioavailability, lag, infusion rate and duration for every
// compartment from the F, ALAG, R and D parameters.
func (m *PK) Main(p *sim.Problem) {
	for i := range m.cmts {
		p.SetF(i, p.Param(m.f[i]))
		p.SetAlag(i, p.Param(m.alag[i]))
		p.SetRate(i, p.Param(m.r[i]))
		p.SetDur(i, p.Param(m.d[i]))
	}
}

func (m *PK) ODE(p *sim.Problem, _ float64, y, dydt []float64) {
	cl := p.Param(m.cl) * math.Exp(p.Eta(0))
	v := p.Param(m.v) * math.Exp(p.Eta(1))
	ka := p.Param(m.ka) * math.Exp(p.Eta(2))

	dydt[Depot] = -ka * y[Depot]
	dydt[Central] = ka*y[Depot] - cl/v*y[Central]
	if m.q >= 0 {
		q, vp := p.Param(m.q), p.Param(m.vp)
		toPeriph := q/v*y[Central] - q/vp*y[Peripheral]
		dydt[Central] -= toPeriph
		dydt[Peripheral] = toPeriph
	}
}

// Table captures the central concentration and the observed value.
func (m *PK) Table(p *sim.Problem) {
	v := p.Param(m.v) * math.Exp(p.Eta(1))
	cp := p.Y(Central) / v
	p.SetCapture(0, cp)
	p.SetCapture(1, cp*(1+p.Eps(0)))
	if m.tstop >= 0 && p.Time() >= p.Param(m.tstop) {
		p.StopSystem(p.Param(m.cfonstop) != 0)
	}
}
