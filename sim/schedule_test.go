package sim

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/popsim/sim/internal/testutil"
	"github.com/inference-sim/popsim/sim/trace"
)

func dumpStacks(s *Simulator) []byte {
	var b strings.Builder
	for _, st := range s.Stacks() {
		for _, rec := range st.Records {
			b.WriteString(rec.String())
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}

func TestSchedule_AdditionalDoses_Golden(t *testing.T) {
	// GIVEN 100 units every 12h with 2 additional doses, last record at 24
	ds := dataset(t,
		row{1, 0, 1, 100, 1, 0, 12, 2, 0},
		obs(1, 24),
	)

	// WHEN simulated with the default sort mode (additional doses first on ties)
	s, res := runSim(t, newStubModel(), Inputs{Data: ds, Request: []int{0}}, DefaultOptions())

	// THEN the expanded stack matches the golden schedule
	testutil.AssertGolden(t, "addl_expansion", dumpStacks(s))
	assert.Equal(t, 2, res.Stats.AdditionalDoses)
	assert.Equal(t, []float64{100, 300}, col(t, res, "CENT"))
}

func TestSchedule_AdditionalDoses_BoundedByLastRecord(t *testing.T) {
	ds := dataset(t,
		row{1, 0, 1, 100, 1, 0, 12, 5, 0},
		obs(1, 20),
	)

	_, res := runSim(t, newStubModel(), Inputs{Data: ds, Request: []int{0}}, DefaultOptions())

	assert.Equal(t, 1, res.Stats.AdditionalDoses)
	assert.Equal(t, []float64{100, 200}, col(t, res, "CENT"))
}

func TestSchedule_AdditionalDoses_TieOrderBySortMode(t *testing.T) {
	// An additional dose at 12 ties with an observation at 12.
	ds := func(t *testing.T) Inputs {
		return Inputs{Data: dataset(t, row{1, 0, 1, 100, 1, 0, 12, 1, 0}, obs(1, 12)), Request: []int{0}}
	}

	opts := DefaultOptions()
	opts.RecordSortMode = 1
	_, res := runSim(t, newStubModel(), ds(t), opts)
	assert.Equal(t, 200.0, col(t, res, "CENT")[1], "mode 1 doses before the tied observation")

	opts.RecordSortMode = 2
	_, res = runSim(t, newStubModel(), ds(t), opts)
	assert.Equal(t, 100.0, col(t, res, "CENT")[1], "mode 2 observes before the tied dose")
}

func TestSchedule_LagTime_SpawnsOnePhantom_Golden(t *testing.T) {
	// GIVEN a lag time of 2 on CENT
	m := newStubModel()
	m.alag[0] = 2
	ds := dataset(t, bolus(1, 0, 100, 1), obs(1, 1), obs(1, 3))
	s, err := NewSimulator(m, Inputs{Data: ds, Request: []int{0}}, DefaultOptions())
	require.NoError(t, err)
	s.Trace = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})

	// WHEN simulated
	res, err := s.Run()
	require.NoError(t, err)

	// THEN the source dose is disarmed, the phantom delivers at t=2 and takes its row
	testutil.AssertGolden(t, "lag_phantom", dumpStacks(s))
	assert.Equal(t, []float64{1, 2, 3}, col(t, res, "time"))
	assert.Equal(t, []float64{0, 100, 100}, col(t, res, "CENT"))
	assert.Equal(t, 1, res.Stats.LagPhantoms)
	require.Len(t, s.Trace.Schedules, 1)
	assert.Equal(t, trace.KindLagPhantom, s.Trace.Schedules[0].Kind)
	assert.Equal(t, 2.0, s.Trace.Schedules[0].Time)
}

func TestSchedule_LagTime_BelowMinimumStep_Ignored(t *testing.T) {
	m := newStubModel()
	m.alag[0] = 1e-6
	opts := DefaultOptions()
	opts.MinimumTimeStep = 1e-3
	ds := dataset(t, bolus(1, 0, 100, 1), obs(1, 1))

	_, res := runSim(t, m, Inputs{Data: ds, Request: []int{0}}, opts)

	assert.Equal(t, 0, res.Stats.LagPhantoms)
	assert.Equal(t, []float64{100, 100}, col(t, res, "CENT"))
}

func TestSchedule_InfusionRateFromModel(t *testing.T) {
	// GIVEN rate=-1 and a model-declared rate of 10
	m := newStubModel()
	m.rate[0] = 10
	ds := dataset(t, row{1, 0, 1, 100, 1, -1, 0, 0, 0}, obs(1, 5), obs(1, 20))

	// WHEN simulated
	_, res := runSim(t, m, Inputs{Data: ds, Request: []int{0}, CarryTran: []string{"rate"}}, DefaultOptions())

	// THEN the infusion runs for 10 time units
	assert.Equal(t, 1, res.Stats.InfusionEnds)
	assert.Equal(t, []float64{10, 0, 0}, col(t, res, "rate"))
	cent := col(t, res, "CENT")
	assert.InDelta(t, 0, cent[0], 1e-12)
	assert.InDelta(t, 50, cent[1], 1e-6)
	assert.InDelta(t, 100, cent[2], 1e-6)
}

func TestSchedule_InfusionDurationFromModel(t *testing.T) {
	m := newStubModel()
	m.dur[0] = 4
	ds := dataset(t, row{1, 0, 1, 100, 1, -2, 0, 0, 0}, obs(1, 2), obs(1, 8))

	_, res := runSim(t, m, Inputs{Data: ds, Request: []int{0}, CarryTran: []string{"rate"}}, DefaultOptions())

	assert.Equal(t, 25.0, col(t, res, "rate")[0])
	cent := col(t, res, "CENT")
	assert.InDelta(t, 50, cent[1], 1e-6)
	assert.InDelta(t, 100, cent[2], 1e-6)
}

func TestSchedule_Bioavailability_ScalesDoseAndInfusionLength(t *testing.T) {
	m := newStubModel()
	m.f[0] = 0.5
	ds := dataset(t, row{1, 0, 1, 100, 1, 10, 0, 0, 0}, obs(1, 20))

	_, res := runSim(t, m, Inputs{Data: ds, Request: []int{0}}, DefaultOptions())

	assert.InDelta(t, 50, col(t, res, "CENT")[1], 1e-6)
}

func TestSchedule_FatalResolutionErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *stubModel)
		rate  float64
		want  error
	}{
		{"negative bioavailability", func(m *stubModel) { m.f[0] = -0.1 }, 0, ErrBioavailability},
		{"rate -1 without model rate", func(m *stubModel) {}, -1, ErrInfusionRate},
		{"rate -2 without model duration", func(m *stubModel) {}, -2, ErrInfusionDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newStubModel()
			tt.setup(m)
			ds := dataset(t, row{1, 3, 1, 100, 1, tt.rate, 0, 0, 0}, obs(1, 5))
			s, err := NewSimulator(m, Inputs{Data: ds}, DefaultOptions())
			require.NoError(t, err)

			res, err := s.Run()

			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
			var recErr *RecordError
			require.True(t, errors.As(err, &recErr))
			assert.Equal(t, 1.0, recErr.Subject)
			assert.Equal(t, 3.0, recErr.Time)
		})
	}
}

func TestSchedule_DoseScheduledOnce(t *testing.T) {
	// GIVEN one dose with additional doses and a reset-and-dose record
	ds := dataset(t,
		row{1, 0, 4, 100, 1, 0, 12, 1, 0},
		obs(1, 12),
	)

	_, res := runSim(t, newStubModel(), Inputs{Data: ds, Request: []int{0}, CarryTran: []string{"evid"}}, DefaultOptions())

	// THEN the additional dose is a plain dose and the state accumulates
	assert.Equal(t, 1, res.Stats.Doses)
	assert.Equal(t, 1, res.Stats.AdditionalDoses)
	assert.Equal(t, []float64{100, 200}, col(t, res, "CENT"))
}
