package sim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// tranCarryOrder is the canonical order of carried event fields. "a.u.g" flags
// grid observations added by augmentation.
var tranCarryOrder = []string{"evid", "amt", "cmt", "ss", "ii", "addl", "rate", "a.u.g"}

// Result is the simulation output.
type Result struct {
	Data      *mat.Dense // nil when the run produced no rows
	Columns   []string
	TranNames []string // carried event fields, canonical order
	Stats     RunStats
}

// Rows returns the number of output rows.
func (r *Result) Rows() int {
	if r.Data == nil {
		return 0
	}
	n, _ := r.Data.Dims()
	return n
}

// Row returns a copy of output row i.
func (r *Result) Row(i int) []float64 {
	return mat.Row(nil, i, r.Data)
}

// Col returns a copy of the named column.
func (r *Result) Col(name string) ([]float64, bool) {
	for j, c := range r.Columns {
		if c == name {
			if r.Data == nil {
				return nil, true
			}
			return mat.Col(nil, j, r.Data), true
		}
	}
	return nil, false
}

// outputLayout fixes the column order:
// id, time, tran carry, data carry, idata carry, requested states, captures.
type outputLayout struct {
	tran       []string
	dataCols   []int
	dataNames  []string
	idataCols  []int
	idataNames []string
	request    []int
	reqNames   []string
	capture    []int
	capNames   []string

	tranStart, dataStart, idataStart, reqStart, captureStart, ncol int
}

func (l *outputLayout) place() {
	l.tranStart = 2
	l.dataStart = l.tranStart + len(l.tran)
	l.idataStart = l.dataStart + len(l.dataCols)
	l.reqStart = l.idataStart + len(l.idataCols)
	l.captureStart = l.reqStart + len(l.request)
	l.ncol = l.captureStart + len(l.capture)
}

func (l *outputLayout) columns() []string {
	cols := make([]string, 0, l.ncol)
	cols = append(cols, "ID", "time")
	cols = append(cols, l.tran...)
	cols = append(cols, l.dataNames...)
	cols = append(cols, l.idataNames...)
	cols = append(cols, l.reqNames...)
	cols = append(cols, l.capNames...)
	return cols
}

// canonicalTran keeps the requested tran names that are recognized, in
// canonical order.
func canonicalTran(requested []string) []string {
	want := make(map[string]bool, len(requested))
	for _, n := range requested {
		want[n] = true
	}
	var out []string
	for _, n := range tranCarryOrder {
		if want[n] {
			out = append(out, n)
		}
	}
	return out
}

func tranValue(name string, rec *Record, augment bool) float64 {
	switch name {
	case "evid":
		return float64(rec.Evid)
	case "amt":
		return rec.Amt
	case "cmt":
		return float64(rec.Cmt)
	case "ss":
		return float64(rec.Ss)
	case "ii":
		return rec.Ii
	case "addl":
		return float64(rec.Addl)
	case "rate":
		return rec.Rate
	case "a.u.g":
		if rec.grid && augment {
			return 1
		}
		return 0
	}
	return math.NaN()
}

// signif rounds x to digits significant digits.
func signif(x float64, digits int) float64 {
	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	mag := math.Ceil(math.Log10(math.Abs(x)))
	pow := math.Pow(10, float64(digits)-mag)
	if !math.IsInf(pow, 0) && pow != 0 {
		return math.Round(x*pow) / pow
	}
	// Near the ends of the float64 range: normalize in two finite steps.
	half := math.Floor(-mag / 2)
	s1, s2 := math.Pow(10, half), math.Pow(10, -mag-half)
	scale := math.Pow(10, float64(digits))
	y := math.Round(x*s1*s2*scale) / scale
	return y / s1 / s2
}

// postProcess rounds requested and captured columns and rescales time.
func (l *outputLayout) postProcess(out *mat.Dense, digits int, timeScale float64) {
	if out == nil {
		return
	}
	rows, _ := out.Dims()
	if digits > 0 {
		for i := 0; i < rows; i++ {
			for j := l.reqStart; j < l.ncol; j++ {
				out.Set(i, j, signif(out.At(i, j), digits))
			}
		}
	}
	if timeScale != 1 && timeScale >= 0 {
		for i := 0; i < rows; i++ {
			out.Set(i, 1, out.At(i, 1)*timeScale)
		}
	}
}
