package sink

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/popsim/sim"
	"github.com/inference-sim/popsim/sim/data"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		Data: mat.NewDense(3, 3, []float64{
			1, 0, 5,
			1, 2.5, 4.125,
			2, 0, math.NaN(),
		}),
		Columns: []string{"ID", "time", "CP"},
		Stats:   sim.RunStats{Subjects: 2, Rows: 3},
	}
}

func TestWriteCSV_HeaderRowsAndMissing(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteCSV(&buf, sampleResult()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"ID,time,CP", "1,0,5", "1,2.5,4.125", "2,0,NA"}, lines)
}

func TestWriteCSV_ReadBack_RoundTripsThroughDataPackage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResult()))

	tbl, err := data.ReadCSV(&buf)

	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "time", "CP"}, tbl.Columns)
	assert.Equal(t, 3, tbl.NRow())
	assert.True(t, math.IsNaN(tbl.Rows[2][2]))
}

func TestWriteCSV_EmptyResult_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteCSV(&buf, &sim.Result{Columns: []string{"ID", "time"}}))

	assert.Equal(t, "ID,time\n", buf.String())
}

func TestStore_SaveAndLoadRun(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "runs", "popsim.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	// WHEN a result is saved
	id, err := store.SaveRun(ctx, "pk1cmt", sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// THEN metadata and cells read back, with NULL restored as NaN
	info, rows, err := store.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "pk1cmt", info.Model)
	assert.Equal(t, []string{"ID", "time", "CP"}, info.Columns)
	assert.Equal(t, 2, info.Subjects)
	assert.Equal(t, 3, info.Rows)
	require.Len(t, rows, 3)
	assert.Equal(t, []float64{1, 2.5, 4.125}, rows[1])
	assert.True(t, math.IsNaN(rows[2][2]))
}

func TestStore_RunsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "popsim.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	first, err := store.SaveRun(ctx, "pk1cmt", sampleResult())
	require.NoError(t, err)
	second, err := store.SaveRun(ctx, "pk2cmt", &sim.Result{
		Data:    mat.NewDense(1, 2, []float64{7, 1}),
		Columns: []string{"ID", "time"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	info, rows, err := store.LoadRun(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "pk2cmt", info.Model)
	assert.Equal(t, [][]float64{{7, 1}}, rows)
}

func TestStore_UnknownRun_ReturnsErrRunNotFound(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "popsim.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.Run(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrRunNotFound)
}
