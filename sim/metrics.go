// Tracks run-wide counters: subjects, records, rows, scheduled doses and
// integrator work.

package sim

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunStats aggregates counts about a run for final reporting.
type RunStats struct {
	Subjects        int // subjects simulated
	Records         int // records processed, including disarmed ones
	Rows            int // output rows written
	Doses           int // dataset doses scheduled
	AdditionalDoses int // doses generated from addl/ii
	InfusionEnds    int // end-of-infusion records generated
	LagPhantoms     int // doses deferred by a lag time
	Mtimes          int // milestone records merged
	Shutoffs        int // subjects whose model stopped the system
	ODESteps        int // accepted integrator steps
}

func (s *RunStats) add(o RunStats) {
	s.Subjects += o.Subjects
	s.Records += o.Records
	s.Rows += o.Rows
	s.Doses += o.Doses
	s.AdditionalDoses += o.AdditionalDoses
	s.InfusionEnds += o.InfusionEnds
	s.LagPhantoms += o.LagPhantoms
	s.Mtimes += o.Mtimes
	s.Shutoffs += o.Shutoffs
	s.ODESteps += o.ODESteps
}

// Print displays the aggregated counts at the end of a run.
func (s RunStats) Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, "=== Simulation Summary ===")
	_, _ = fmt.Fprintf(w, "Subjects             : %d\n", s.Subjects)
	_, _ = fmt.Fprintf(w, "Records Processed    : %d\n", s.Records)
	_, _ = fmt.Fprintf(w, "Output Rows          : %d\n", s.Rows)
	_, _ = fmt.Fprintf(w, "Doses Scheduled      : %d\n", s.Doses)
	_, _ = fmt.Fprintf(w, "Additional Doses     : %d\n", s.AdditionalDoses)
	_, _ = fmt.Fprintf(w, "Infusion Ends        : %d\n", s.InfusionEnds)
	_, _ = fmt.Fprintf(w, "Lag Phantoms         : %d\n", s.LagPhantoms)
	_, _ = fmt.Fprintf(w, "System Shutoffs      : %d\n", s.Shutoffs)
	_, _ = fmt.Fprintf(w, "ODE Steps            : %d\n", s.ODESteps)
}

// Metrics exports RunStats as Prometheus counters.
type Metrics struct {
	Subjects  prometheus.Counter
	Records   prometheus.Counter
	Rows      prometheus.Counter
	Scheduled *prometheus.CounterVec // by kind: dose, addl, infusion_end, lag, mtime
	Shutoffs  prometheus.Counter
	ODESteps  prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// creates unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Subjects: f.NewCounter(prometheus.CounterOpts{
			Namespace: "popsim", Name: "subjects_total", Help: "Subjects simulated.",
		}),
		Records: f.NewCounter(prometheus.CounterOpts{
			Namespace: "popsim", Name: "records_total", Help: "Records processed.",
		}),
		Rows: f.NewCounter(prometheus.CounterOpts{
			Namespace: "popsim", Name: "output_rows_total", Help: "Output rows written.",
		}),
		Scheduled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "popsim", Name: "scheduled_records_total", Help: "Records scheduled or generated, by kind.",
		}, []string{"kind"}),
		Shutoffs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "popsim", Name: "system_shutoffs_total", Help: "Subjects whose model stopped the system.",
		}),
		ODESteps: f.NewCounter(prometheus.CounterOpts{
			Namespace: "popsim", Name: "ode_steps_total", Help: "Accepted integrator steps.",
		}),
	}
}

// Observe adds a run's counts to the counters.
func (m *Metrics) Observe(s RunStats) {
	if m == nil {
		return
	}
	m.Subjects.Add(float64(s.Subjects))
	m.Records.Add(float64(s.Records))
	m.Rows.Add(float64(s.Rows))
	m.Scheduled.WithLabelValues("dose").Add(float64(s.Doses))
	m.Scheduled.WithLabelValues("addl").Add(float64(s.AdditionalDoses))
	m.Scheduled.WithLabelValues("infusion_end").Add(float64(s.InfusionEnds))
	m.Scheduled.WithLabelValues("lag").Add(float64(s.LagPhantoms))
	m.Scheduled.WithLabelValues("mtime").Add(float64(s.Mtimes))
	m.Shutoffs.Add(float64(s.Shutoffs))
	m.ODESteps.Add(float64(s.ODESteps))
}
