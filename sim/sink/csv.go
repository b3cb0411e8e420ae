// Package sink writes simulation results: CSV files for downstream tools and a
// SQLite store that keeps every run under a UUID.
package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/inference-sim/popsim/sim"
)

// missingValue is written for NaN cells and read back as NaN by data.ReadCSV.
const missingValue = "NA"

// WriteCSV writes res with a header row of column names.
func WriteCSV(w io.Writer, res *sim.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	rec := make([]string, len(res.Columns))
	for i := 0; i < res.Rows(); i++ {
		for j, v := range res.Row(i) {
			rec[j] = formatValue(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes res to path, replacing any existing file.
func WriteCSVFile(path string, res *sim.Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return WriteCSV(f, res)
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return missingValue
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
