package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// buildStacks turns dataset rows into one record stack per subject and counts
// observation and event rows. Without dataset rows, subjects come from the
// covariate table, or a single subject with ID 1.
func (s *Simulator) buildStacks() error {
	d := s.in.Data
	ncmt := len(s.model.Compartments())
	if d != nil && d.NumSubjects() > 0 {
		for _, subj := range d.Subjects() {
			st := NewRecordStack(subj.ID)
			for _, row := range subj.Rows {
				tr := d.Tran(row)
				rec := NewDataRecord(row, tr.ID, tr.Time, tr.Evid, tr.Cmt, tr.Amt, tr.Rate, tr.Ii, tr.Addl, tr.Ss, s.opts.ObservationsOnly)
				if err := validateRecord(rec, ncmt); err != nil {
					return fmt.Errorf("dataset row %d: %w", row+1, err)
				}
				if rec.Evid == EvidObservation {
					s.obsCount++
				} else if rec.output {
					s.evCount++
				}
				st.Push(rec)
			}
			st.Sort()
			s.stacks = append(s.stacks, st)
			s.firstRow = append(s.firstRow, subj.Rows[0])
			if s.in.IData != nil {
				if _, ok := s.in.IData.Row(subj.ID); !ok {
					logrus.Warnf("ID %v is in the dataset but not in idata", subj.ID)
				}
			}
		}
		return nil
	}

	ids := s.in.IData.IDs()
	if len(ids) == 0 {
		ids = []float64{1}
	}
	for _, id := range ids {
		s.stacks = append(s.stacks, NewRecordStack(id))
		s.firstRow = append(s.firstRow, -1)
	}
	return nil
}

// validateRecord checks compartment and infusion fields against the model.
func validateRecord(rec *Record, ncmt int) error {
	if rec.Ii < 0 || rec.Addl < 0 {
		return fmt.Errorf("ii and addl must be >= 0 (ii=%g, addl=%d)", rec.Ii, rec.Addl)
	}
	if rec.Rate < 0 && rec.Rate != -1 && rec.Rate != -2 {
		return fmt.Errorf("rate must be >= 0, -1 or -2 (got %g)", rec.Rate)
	}
	switch {
	case rec.IsDose():
		if rec.Cmt < 1 || rec.Cmt > ncmt {
			return fmt.Errorf("%w: dose into cmt %d with %d compartments", ErrCompartment, rec.Cmt, ncmt)
		}
	case rec.Evid == EvidOther:
		if rec.Cmt > ncmt || -rec.Cmt > ncmt {
			return fmt.Errorf("%w: cmt %d with %d compartments", ErrCompartment, rec.Cmt, ncmt)
		}
	}
	return nil
}
