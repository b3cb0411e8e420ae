package trace

import "testing"

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalDecisions != 0 || summary.Subjects != 0 {
		t.Errorf("expected zero summary, got %+v", summary)
	}
	if summary.ByKind == nil {
		t.Error("ByKind must be non-nil")
	}
}

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalDecisions != 0 {
		t.Errorf("expected 0 total decisions, got %d", summary.TotalDecisions)
	}
	if summary.Shutoffs != 0 {
		t.Errorf("expected 0 shutoffs, got %d", summary.Shutoffs)
	}
	if summary.MeanLag != 0 || summary.MaxLag != 0 {
		t.Error("expected 0 lag values")
	}
	if len(summary.ByKind) != 0 {
		t.Error("expected empty kind distribution")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with records for two subjects
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})
	st.RecordSchedule(ScheduleRecord{Subject: 1, Kind: KindAdditionalDose, AnchorTime: 0, Time: 12})
	st.RecordSchedule(ScheduleRecord{Subject: 1, Kind: KindAdditionalDose, AnchorTime: 0, Time: 24})
	st.RecordSchedule(ScheduleRecord{Subject: 2, Kind: KindInfusionEnd, AnchorTime: 0, Time: 1})
	st.RecordShutoff(ShutoffRecord{Subject: 2, Time: 10})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts match
	if summary.TotalDecisions != 3 {
		t.Errorf("expected 3 total decisions, got %d", summary.TotalDecisions)
	}
	if summary.ByKind[KindAdditionalDose] != 2 {
		t.Errorf("expected 2 addl records, got %d", summary.ByKind[KindAdditionalDose])
	}
	if summary.Subjects != 2 {
		t.Errorf("expected 2 subjects, got %d", summary.Subjects)
	}
	if summary.Shutoffs != 1 {
		t.Errorf("expected 1 shutoff, got %d", summary.Shutoffs)
	}
}

func TestSummarize_LagStatistics_CorrectMeanAndMax(t *testing.T) {
	// GIVEN lag phantoms with known delays
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})
	st.RecordSchedule(ScheduleRecord{Subject: 1, Kind: KindLagPhantom, AnchorTime: 0, Time: 0.5})
	st.RecordSchedule(ScheduleRecord{Subject: 2, Kind: KindLagPhantom, AnchorTime: 12, Time: 13.5})

	// WHEN summarized
	summary := Summarize(st)

	// THEN mean lag = (0.5 + 1.5) / 2 = 1
	if summary.MeanLag < 0.999 || summary.MeanLag > 1.001 {
		t.Errorf("expected mean lag ~1, got %.4f", summary.MeanLag)
	}
	if summary.MaxLag != 1.5 {
		t.Errorf("expected max lag 1.5, got %g", summary.MaxLag)
	}
}
