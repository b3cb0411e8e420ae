package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/popsim/sim/trace"
)

// scheduleDose resolves bioavailability, infusion rate and lag time for the
// dataset dose at index j of st, then expands its additional doses and
// infusion end. A record is scheduled at most once.
func (r *subjectRun) scheduleDose(st *RecordStack, j int, maxTime float64) error {
	rec := st.Records[j]
	if rec.scheduled || !rec.armed {
		return nil
	}
	rec.scheduled = true
	p := r.p

	i, err := p.cmtIndex(rec.Cmt)
	if err != nil {
		return err
	}
	fn := p.f[i]
	if fn < 0 {
		return fmt.Errorf("%w (cmt %d: %g)", ErrBioavailability, rec.Cmt, fn)
	}
	rec.Fn = fn

	switch rec.Rate {
	case -1:
		if p.rate[i] <= 0 {
			return fmt.Errorf("%w: cmt %d declares %g", ErrInfusionRate, rec.Cmt, p.rate[i])
		}
		rec.Rate = p.rate[i]
	case -2:
		if p.dur[i] <= 0 {
			return fmt.Errorf("%w: cmt %d declares %g", ErrInfusionDuration, rec.Cmt, p.dur[i])
		}
		rec.Rate = rec.Amt * fn / p.dur[i]
	}
	r.stats.Doses++

	if lag := p.alag[i]; lag > r.sim.opts.MinimumTimeStep {
		ph := rec.clone()
		ph.Pos = posPhantom
		ph.phantom = true
		ph.fromData = false
		ph.Time = rec.Time + lag
		ph.Fn = fn
		rec.unarm()

		st.insertAfter(j, ph)
		r.stats.LagPhantoms++
		r.record(trace.KindLagPhantom, rec.Time, ph)
		logrus.Debugf("[subject %v] lag %g: dose at %g deferred to %g", st.ID, lag, rec.Time, ph.Time)

		r.expand(st, ph, maxTime)
		st.sortFrom(j)
		return nil
	}

	if r.expand(st, rec, maxTime) {
		st.sortFrom(j + 1)
	}
	return nil
}

// expand appends the infusion end and additional doses of anchor to st,
// bounded by maxTime. It reports whether anything was appended.
func (r *subjectRun) expand(st *RecordStack, anchor *Record, maxTime float64) bool {
	anchor.scheduled = true
	before := st.Len()
	pos := posAddlLast
	if r.sim.opts.RecordSortMode.AddlFirst() {
		pos = posAddlFirst
	}

	r.infusionEnd(st, anchor, pos, maxTime)

	if anchor.Addl > 0 && anchor.Ii > 0 {
		evid := anchor.Evid
		if evid == EvidResetDose {
			evid = EvidDose
		}
		for k := 1; k <= anchor.Addl; k++ {
			t := anchor.Time + anchor.Ii*float64(k)
			if t > maxTime {
				break
			}
			dose := &Record{
				Time:      t,
				Pos:       pos,
				Row:       anchor.Row,
				ID:        anchor.ID,
				Evid:      evid,
				Cmt:       anchor.Cmt,
				Amt:       anchor.Amt,
				Rate:      anchor.Rate,
				Ii:        anchor.Ii,
				Fn:        anchor.Fn,
				armed:     true,
				scheduled: true,
			}
			st.Push(dose)
			r.stats.AdditionalDoses++
			r.record(trace.KindAdditionalDose, anchor.Time, dose)
			r.infusionEnd(st, dose, pos, maxTime)
		}
	}
	return st.Len() > before
}

// infusionEnd appends the end-of-infusion record for dose when it is an infusion.
func (r *subjectRun) infusionEnd(st *RecordStack, dose *Record, pos int, maxTime float64) {
	if !dose.IsInfusion() {
		return
	}
	t := dose.Time + dose.Amt*dose.Fn/dose.Rate
	if t > maxTime {
		return
	}
	end := &Record{
		Time:      t,
		Pos:       pos,
		Row:       dose.Row,
		ID:        dose.ID,
		Evid:      EvidInfusionEnd,
		Cmt:       dose.Cmt,
		Amt:       dose.Amt,
		Rate:      dose.Rate,
		Fn:        dose.Fn,
		armed:     true,
		scheduled: true,
	}
	st.Push(end)
	r.stats.InfusionEnds++
	r.record(trace.KindInfusionEnd, dose.Time, end)
}

func (r *subjectRun) record(kind trace.ScheduleKind, anchor float64, rec *Record) {
	if !r.tracing {
		return
	}
	r.decisions = append(r.decisions, trace.ScheduleRecord{
		Subject:    rec.ID,
		Kind:       kind,
		AnchorTime: anchor,
		Time:       rec.Time,
		Cmt:        rec.Cmt,
	})
}
