package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions int
	ByKind         map[ScheduleKind]int
	Subjects       int // subjects with at least one generated record
	Shutoffs       int
	MeanLag        float64 // mean delay of lag phantoms
	MaxLag         float64
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ByKind: make(map[ScheduleKind]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Schedules)
	summary.Shutoffs = len(st.Shutoffs)
	subjects := make(map[float64]bool)
	lagCount := 0
	totalLag := 0.0
	for _, s := range st.Schedules {
		summary.ByKind[s.Kind]++
		subjects[s.Subject] = true
		if s.Kind == KindLagPhantom {
			lag := s.Time - s.AnchorTime
			totalLag += lag
			lagCount++
			if lag > summary.MaxLag {
				summary.MaxLag = lag
			}
		}
	}
	if lagCount > 0 {
		summary.MeanLag = totalLag / float64(lagCount)
	}
	summary.Subjects = len(subjects)

	return summary
}
