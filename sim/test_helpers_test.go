package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/popsim/sim/data"
	"github.com/inference-sim/popsim/sim/internal/testutil"
)

// stubModel is a linear two-compartment model with first-order elimination K
// from every compartment. Per-compartment dosing quantities come from its
// fields; COV is a covariate parameter echoed to a capture.
type stubModel struct {
	f, alag, rate, dur []float64

	// Optional hooks; only for sequential tests.
	main  func(p *Problem)
	table func(p *Problem)
}

func newStubModel() *stubModel {
	return &stubModel{
		f:    []float64{1, 1},
		alag: []float64{0, 0},
		rate: []float64{0, 0},
		dur:  []float64{0, 0},
	}
}

const (
	stubK = iota
	stubCOV
)

func (m *stubModel) Name() string { return "stub" }
func (m *stubModel) Params() []Param {
	return []Param{{Name: "K", Value: 0}, {Name: "COV", Value: 0}}
}
func (m *stubModel) Compartments() []Compartment {
	return []Compartment{{Name: "CENT"}, {Name: "PERIPH"}}
}
func (m *stubModel) Captures() []string { return []string{"KOUT", "COVOUT"} }

func (m *stubModel) Main(p *Problem) {
	for i := range m.f {
		p.SetF(i, m.f[i])
		p.SetAlag(i, m.alag[i])
		p.SetRate(i, m.rate[i])
		p.SetDur(i, m.dur[i])
	}
	if m.main != nil {
		m.main(p)
	}
}

func (m *stubModel) ODE(p *Problem, _ float64, y, dydt []float64) {
	k := p.Param(stubK)
	for i := range y {
		dydt[i] = -k * y[i]
	}
}

func (m *stubModel) Table(p *Problem) {
	p.SetCapture(0, p.Param(stubK))
	p.SetCapture(1, p.Param(stubCOV))
	if m.table != nil {
		m.table(p)
	}
}

// row is one dataset row: ID, time, evid, amt, cmt, rate, ii, addl, ss.
type row = []float64

func dataset(t *testing.T, rows ...row) *data.Dataset {
	t.Helper()
	return testutil.MustDataset(t, nil, rows)
}

func obs(id, time float64) row { return row{id, time, 0, 0, 0, 0, 0, 0, 0} }

func bolus(id, time, amt float64, cmt int) row {
	return row{id, time, 1, amt, float64(cmt), 0, 0, 0, 0}
}

// runSim builds and runs a simulator, failing the test on error.
func runSim(t *testing.T, m Model, in Inputs, opts Options) (*Simulator, *Result) {
	t.Helper()
	s, err := NewSimulator(m, in, opts)
	require.NoError(t, err)
	res, err := s.Run()
	require.NoError(t, err)
	return s, res
}

// col returns the named output column, failing the test when absent.
func col(t *testing.T, res *Result, name string) []float64 {
	t.Helper()
	c, ok := res.Col(name)
	require.True(t, ok, "missing column %s in %v", name, res.Columns)
	return c
}

// withK returns parameter values with elimination rate k.
func withK(k float64) []float64 { return []float64{k, 0} }
