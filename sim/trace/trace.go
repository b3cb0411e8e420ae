package trace

// TraceLevel controls the verbosity of scheduling traces.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every generated record and system shutoff.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether records should be collected.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelDecisions
}

// SimulationTrace collects scheduling records during a run.
// Records are appended per subject in subject order.
type SimulationTrace struct {
	Config    TraceConfig
	Schedules []ScheduleRecord
	Shutoffs  []ShutoffRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:    config,
		Schedules: make([]ScheduleRecord, 0),
		Shutoffs:  make([]ShutoffRecord, 0),
	}
}

// RecordSchedule appends a scheduling record.
func (st *SimulationTrace) RecordSchedule(record ScheduleRecord) {
	st.Schedules = append(st.Schedules, record)
}

// RecordShutoff appends a system-off record.
func (st *SimulationTrace) RecordShutoff(record ShutoffRecord) {
	st.Shutoffs = append(st.Shutoffs, record)
}
