// Package trace provides scheduling-trace recording for simulation runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// ScheduleKind names the reason a record was generated.
type ScheduleKind string

const (
	KindAdditionalDose ScheduleKind = "addl"
	KindInfusionEnd    ScheduleKind = "infusion-end"
	KindLagPhantom     ScheduleKind = "lag"
	KindMtime          ScheduleKind = "mtime"
)

// ScheduleRecord captures one generated record.
type ScheduleRecord struct {
	Subject    float64
	Kind       ScheduleKind
	AnchorTime float64 // time of the record that caused the generation
	Time       float64 // time of the generated record
	Cmt        int
}

// ShutoffRecord captures a model turning the system off for a subject.
type ShutoffRecord struct {
	Subject      float64
	Time         float64
	CarryForward bool
}
