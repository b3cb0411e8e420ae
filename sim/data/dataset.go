package data

import (
	"fmt"
	"math"
	"strings"
)

// Subject is one subject's block of dataset rows, in row order.
type Subject struct {
	ID   float64
	Rows []int
}

// TranRow holds the event fields of one dataset row.
type TranRow struct {
	ID   float64
	Time float64
	Evid int
	Cmt  int
	Amt  float64
	Rate float64
	Ii   float64
	Addl int
	Ss   int
}

// Dataset is the event/observation table grouped by subject.
type Dataset struct {
	*Table

	idCol, timeCol, evidCol, cmtCol, amtCol, rateCol, iiCol, addlCol, ssCol int

	subjects []Subject
	byID     map[float64]int
}

// NewDataset locates the tran columns and groups rows by subject id in order of
// first appearance. Times must be non-decreasing within a subject.
func NewDataset(t *Table) (*Dataset, error) {
	d := &Dataset{Table: t, byID: make(map[float64]int)}
	var ok bool
	if d.idCol, ok = t.Col("ID"); !ok {
		return nil, fmt.Errorf("dataset: missing ID column")
	}
	if d.timeCol = findTran(t, "time"); d.timeCol < 0 {
		return nil, fmt.Errorf("dataset: missing time column")
	}
	d.evidCol = findTran(t, "evid")
	d.cmtCol = findTran(t, "cmt")
	d.amtCol = findTran(t, "amt")
	d.rateCol = findTran(t, "rate")
	d.iiCol = findTran(t, "ii")
	d.addlCol = findTran(t, "addl")
	d.ssCol = findTran(t, "ss")

	last := make(map[float64]float64)
	for row := range t.Rows {
		id := t.Value(row, d.idCol)
		if math.IsNaN(id) {
			return nil, fmt.Errorf("dataset: row %d has a missing ID", row+1)
		}
		time := t.Value(row, d.timeCol)
		if math.IsNaN(time) {
			return nil, fmt.Errorf("dataset: row %d has a missing time", row+1)
		}
		i, seen := d.byID[id]
		if !seen {
			i = len(d.subjects)
			d.byID[id] = i
			d.subjects = append(d.subjects, Subject{ID: id})
		} else if time < last[id] {
			return nil, fmt.Errorf("dataset: row %d: time %g is before previous time %g for ID %v", row+1, time, last[id], id)
		}
		last[id] = time
		d.subjects[i].Rows = append(d.subjects[i].Rows, row)
	}
	return d, nil
}

// findTran looks a tran column up by its lower- or upper-case name.
func findTran(t *Table, name string) int {
	if c, ok := t.Col(name); ok {
		return c
	}
	if c, ok := t.Col(strings.ToUpper(name)); ok {
		return c
	}
	return -1
}

// NumSubjects returns the number of distinct subject ids.
func (d *Dataset) NumSubjects() int {
	if d == nil {
		return 0
	}
	return len(d.subjects)
}

// Subjects returns subjects in order of first appearance.
func (d *Dataset) Subjects() []Subject {
	if d == nil {
		return nil
	}
	return d.subjects
}

// SubjectIndex returns the position of subject id.
func (d *Dataset) SubjectIndex(id float64) (int, bool) {
	if d == nil {
		return -1, false
	}
	i, ok := d.byID[id]
	return i, ok
}

// Tran reads the event fields of row. Absent or missing numeric fields are zero.
func (d *Dataset) Tran(row int) TranRow {
	return TranRow{
		ID:   d.Value(row, d.idCol),
		Time: d.Value(row, d.timeCol),
		Evid: int(d.get(row, d.evidCol)),
		Cmt:  int(d.get(row, d.cmtCol)),
		Amt:  d.get(row, d.amtCol),
		Rate: d.get(row, d.rateCol),
		Ii:   d.get(row, d.iiCol),
		Addl: int(d.get(row, d.addlCol)),
		Ss:   int(d.get(row, d.ssCol)),
	}
}

func (d *Dataset) get(row, col int) float64 {
	if col < 0 {
		return 0
	}
	v := d.Value(row, col)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// IData is the per-subject covariate table.
type IData struct {
	*Table
	idCol int
	rows  map[float64]int
	ids   []float64
}

// NewIData indexes the covariate table by ID. IDs must be unique.
func NewIData(t *Table) (*IData, error) {
	d := &IData{Table: t, rows: make(map[float64]int)}
	var ok bool
	if d.idCol, ok = t.Col("ID"); !ok {
		return nil, fmt.Errorf("idata: missing ID column")
	}
	for row := range t.Rows {
		id := t.Value(row, d.idCol)
		if _, dup := d.rows[id]; dup {
			return nil, fmt.Errorf("idata: duplicate ID %v at row %d", id, row+1)
		}
		d.rows[id] = row
		d.ids = append(d.ids, id)
	}
	return d, nil
}

// Row returns the covariate row for subject id.
func (d *IData) Row(id float64) (int, bool) {
	if d == nil {
		return -1, false
	}
	r, ok := d.rows[id]
	return r, ok
}

// IDs returns subject ids in table order.
func (d *IData) IDs() []float64 {
	if d == nil {
		return nil
	}
	return d.ids
}
