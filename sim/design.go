package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/inference-sim/popsim/sim/data"
)

// TimeGrid holds the simulation-time designs shared across subjects.
type TimeGrid struct {
	Designs     [][]float64 // observation times per design; NaN entries are padding
	DesignIndex []int       // design per idata row (or subject position without idata); empty means design 0
	Padded      []float64   // non-output times added to every subject
}

// NewDesign returns the sorted, de-duplicated union of start, start+delta, ...
// up to end, and add.
func NewDesign(start, end, delta float64, add []float64) ([]float64, error) {
	if end < start {
		return nil, fmt.Errorf("design end %g is before start %g", end, start)
	}
	if delta <= 0 && end > start {
		return nil, fmt.Errorf("design delta must be > 0, got %g", delta)
	}
	times := []float64{start}
	if end > start {
		n := int(math.Floor((end-start)/delta + 1e-10))
		for k := 1; k <= n; k++ {
			times = append(times, start+float64(k)*delta)
		}
	}
	times = append(times, add...)
	sort.Float64s(times)
	out := times[:0]
	for i, t := range times {
		if i > 0 && t == out[len(out)-1] {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// designTemplates builds one read-only record template per design.
func designTemplates(designs [][]float64, pos int) [][]*Record {
	templates := make([][]*Record, len(designs))
	for i, d := range designs {
		recs := make([]*Record, 0, len(d))
		for _, t := range d {
			if math.IsNaN(t) {
				continue
			}
			recs = append(recs, newGridRecord(t, pos, true))
		}
		templates[i] = recs
	}
	return templates
}

// gridPosition is the tie-break position for generated observations.
func gridPosition(mode SortMode, dataRows int) int {
	if mode.EventsFirst() {
		return dataRows + posGridAfterData
	}
	return posGridFirst
}

// expandGrid clones the assigned design and the padded times into every stack
// and re-sorts each stack. It returns the number of output records added.
//
// With idata, DesignIndex is keyed by the subject's idata row and subjects
// missing from idata use row 0. Without idata it is keyed by stack position.
func expandGrid(stacks []*RecordStack, grid TimeGrid, pos int, idata *data.IData) (int, error) {
	assigned := make([]int, len(stacks))
	if len(grid.DesignIndex) > 0 {
		for i, st := range stacks {
			key := i
			if idata != nil {
				key = 0
				if r, ok := idata.Row(st.ID); ok {
					key = r
				}
			}
			if key >= len(grid.DesignIndex) {
				return 0, fmt.Errorf("%w: subject %v needs entry %d, %d given", ErrDesignIndex, st.ID, key, len(grid.DesignIndex))
			}
			assigned[i] = grid.DesignIndex[key]
		}
	}
	for _, d := range assigned {
		if d < 0 || d >= len(grid.Designs) {
			return 0, fmt.Errorf("%w: design %d requested, %d available", ErrDesigns, d, len(grid.Designs))
		}
	}
	templates := designTemplates(grid.Designs, pos)
	added := 0
	for i, st := range stacks {
		design := templates[assigned[i]]
		recs := make([]*Record, 0, st.Len()+len(design)+len(grid.Padded))
		recs = append(recs, st.Records...)
		for _, tmpl := range design {
			rec := tmpl.clone()
			rec.ID = st.ID
			recs = append(recs, rec)
			added++
		}
		for _, t := range grid.Padded {
			rec := newGridRecord(t, pos, false)
			rec.ID = st.ID
			recs = append(recs, rec)
		}
		st.Records = recs
		st.Sort()
	}
	return added, nil
}

// addMtimes merges milestone times after the subject's first record into st.
func addMtimes(st *RecordStack, times []float64) int {
	if st.Len() == 0 || len(times) == 0 {
		return 0
	}
	first := st.Records[0].Time
	n := 0
	for _, t := range times {
		if t <= first || math.IsNaN(t) {
			continue
		}
		rec := newMtimeRecord(t)
		rec.ID = st.ID
		st.Push(rec)
		n++
	}
	if n > 0 {
		st.Sort()
	}
	return n
}
