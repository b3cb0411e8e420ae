package sim

import "fmt"

// Event ids (evid) understood by the driver.
const (
	EvidObservation = 0
	EvidDose        = 1
	EvidOther       = 2 // compartment on/off; applied after output
	EvidReset       = 3
	EvidResetDose   = 4
	// EvidInfusionEnd marks a generated end-of-infusion record. It never comes
	// from a dataset and never produces output.
	EvidInfusionEnd = 9
)

// Tie-break positions for generated records. Dataset records use their row index.
const (
	posPhantom       = -1200
	posMtime         = -900
	posGridFirst     = -100
	posAddlFirst     = -1000000000
	posAddlLast      = 1000000000
	posGridAfterData = 10 // offset added to the dataset row count
)

// Record is one schedulable event for a subject: a dose, an observation or a
// system-control event.
type Record struct {
	Time float64
	Pos  int // sort key; dataset row index or a tie-break sentinel
	Row  int // dataset row that backs this record, -1 when generated
	ID   float64

	Evid int
	Cmt  int // negative cmt with evid 2 switches the compartment off
	Amt  float64
	Rate float64 // -1: rate from model R_CMT; -2: duration from model D_CMT
	Ii   float64
	Addl int
	Ss   int
	Fn   float64 // bioavailability resolved at scheduling time

	armed     bool
	phantom   bool
	fromData  bool
	output    bool
	grid      bool
	scheduled bool
}

// NewDataRecord creates a record backed by dataset row row. Observations always
// produce output; events produce output unless obsOnly is set.
func NewDataRecord(row int, id, time float64, evid, cmt int, amt, rate, ii float64, addl, ss int, obsOnly bool) *Record {
	return &Record{
		Time:     time,
		Pos:      row,
		Row:      row,
		ID:       id,
		Evid:     evid,
		Cmt:      cmt,
		Amt:      amt,
		Rate:     rate,
		Ii:       ii,
		Addl:     addl,
		Ss:       ss,
		Fn:       1,
		armed:    true,
		fromData: true,
		output:   evid == EvidObservation || !obsOnly,
	}
}

// newGridRecord creates an observation record with the generic grid position.
func newGridRecord(time float64, pos int, output bool) *Record {
	return &Record{
		Time:   time,
		Pos:    pos,
		Row:    -1,
		Evid:   EvidObservation,
		Fn:     1,
		armed:  true,
		output: output,
		grid:   true,
	}
}

func newMtimeRecord(time float64) *Record {
	return &Record{
		Time:  time,
		Pos:   posMtime,
		Row:   -1,
		Evid:  EvidOther,
		Fn:    1,
		armed: true,
	}
}

// Armed reports whether the record still has an effect.
func (r *Record) Armed() bool { return r.armed }

// Phantom reports whether the record was spawned to realize a lag time.
func (r *Record) Phantom() bool { return r.phantom }

// FromData reports whether the record came from a dataset row.
func (r *Record) FromData() bool { return r.fromData }

// Output reports whether the record produces a result row.
func (r *Record) Output() bool { return r.output }

// Grid reports whether the record came from a design or padded time.
func (r *Record) Grid() bool { return r.grid }

// IsEvent reports whether the record carries an event rather than an observation.
func (r *Record) IsEvent() bool { return r.Evid != EvidObservation }

// IsDose reports whether the record delivers an amount.
func (r *Record) IsDose() bool { return r.Evid == EvidDose || r.Evid == EvidResetDose }

// IsInfusion reports whether the record starts a zero-order input.
func (r *Record) IsInfusion() bool { return r.IsDose() && r.Rate > 0 && r.Amt > 0 }

// unarm disables the record: no effect, no output.
func (r *Record) unarm() {
	r.armed = false
	r.output = false
}

func (r *Record) clone() *Record {
	c := *r
	return &c
}

func (r *Record) String() string {
	return fmt.Sprintf("Record{t=%g pos=%d evid=%d cmt=%d amt=%g rate=%g armed=%t output=%t}",
		r.Time, r.Pos, r.Evid, r.Cmt, r.Amt, r.Rate, r.armed, r.output)
}

// recordLess orders by time, then by position.
func recordLess(a, b *Record) bool {
	if a.Time == b.Time {
		return a.Pos < b.Pos
	}
	return a.Time < b.Time
}
