// Package testutil provides shared test infrastructure for the simulator:
// golden-file comparison, dataset builders and float assertions used across
// sim/ and its sub-package tests.
package testutil

import (
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/inference-sim/popsim/sim/data"
)

// AssertGolden compares got against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./sim -update
func AssertGolden(t *testing.T, name string, got []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, got)
}

// TranColumns is the column set used by MustDataset.
var TranColumns = []string{"ID", "time", "evid", "amt", "cmt", "rate", "ii", "addl", "ss"}

// MustDataset builds a dataset from rows laid out as TranColumns followed by
// extra columns, failing the test on error.
func MustDataset(t *testing.T, extra []string, rows [][]float64) *data.Dataset {
	t.Helper()
	cols := append(append([]string(nil), TranColumns...), extra...)
	tbl, err := data.NewTable(cols, rows)
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	ds, err := data.NewDataset(tbl)
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}
	return ds
}

// MustIData builds an idata table, failing the test on error.
func MustIData(t *testing.T, cols []string, rows [][]float64) *data.IData {
	t.Helper()
	tbl, err := data.NewTable(cols, rows)
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	id, err := data.NewIData(tbl)
	if err != nil {
		t.Fatalf("building idata: %v", err)
	}
	return id
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
