package sim

import "sort"

// RecordStack is the time-ordered sequence of records for one subject.
// Records are owned by exactly one stack; templates are cloned on insertion.
type RecordStack struct {
	ID      float64
	Records []*Record
}

// NewRecordStack returns an empty stack for subject id.
func NewRecordStack(id float64) *RecordStack {
	return &RecordStack{ID: id}
}

// Len returns the number of records, armed or not.
func (s *RecordStack) Len() int { return len(s.Records) }

// At returns the record at index i.
func (s *RecordStack) At(i int) *Record { return s.Records[i] }

// Push appends records without sorting.
func (s *RecordStack) Push(recs ...*Record) {
	s.Records = append(s.Records, recs...)
}

// Sort stable-sorts the whole stack.
func (s *RecordStack) Sort() { s.sortFrom(0) }

// sortFrom stable-sorts records at index i and later, leaving the head untouched.
func (s *RecordStack) sortFrom(i int) {
	if i < 0 {
		i = 0
	}
	if i >= len(s.Records) {
		return
	}
	tail := s.Records[i:]
	sort.SliceStable(tail, func(a, b int) bool { return recordLess(tail[a], tail[b]) })
}

// insertAfter places rec directly after index i.
func (s *RecordStack) insertAfter(i int, rec *Record) {
	s.Records = append(s.Records, nil)
	copy(s.Records[i+2:], s.Records[i+1:])
	s.Records[i+1] = rec
}

// MaxTime returns the time of the last record, or 0 for an empty stack.
func (s *RecordStack) MaxTime() float64 {
	if len(s.Records) == 0 {
		return 0
	}
	return s.Records[len(s.Records)-1].Time
}

// OutputCount returns the number of records that will produce a result row.
func (s *RecordStack) OutputCount() int {
	n := 0
	for _, r := range s.Records {
		if r.output {
			n++
		}
	}
	return n
}

// Sorted reports whether the stack satisfies the record ordering.
func (s *RecordStack) Sorted() bool {
	for i := 1; i < len(s.Records); i++ {
		if recordLess(s.Records[i], s.Records[i-1]) {
			return false
		}
	}
	return true
}
