package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/popsim/sim"
	"github.com/inference-sim/popsim/sim/sink"
	"github.com/inference-sim/popsim/sim/trace"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRunConfig_EmptyPath_Defaults(t *testing.T) {
	cfg, err := LoadRunConfig("")

	require.NoError(t, err)
	assert.Equal(t, "pk1cmt", cfg.Model)
	assert.Equal(t, sim.DefaultOptions(), cfg.Options)
	grid, err := cfg.Grid()
	require.NoError(t, err)
	require.Len(t, grid.Designs, 1)
	assert.Len(t, grid.Designs[0], 25)
}

func TestLoadRunConfig_OverridesKeepOtherDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run.yaml", `
model: pk2cmt
params:
  CL: 2.5
options:
  digits: 4
  record_sort_mode: 3
designs:
  - {start: 0, end: 12, delta: 6, add: [1]}
request: [CENT]
`)

	cfg, err := LoadRunConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "pk2cmt", cfg.Model)
	assert.Equal(t, 4, cfg.Options.Digits)
	assert.Equal(t, sim.SortMode(3), cfg.Options.RecordSortMode)
	assert.Equal(t, 1.0, cfg.Options.TimeScale, "unset options keep defaults")
	assert.Equal(t, 1e-8, cfg.Options.Integrator.RTol)
	grid, err := cfg.Grid()
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1, 6, 12}}, grid.Designs)
}

func TestLoadRunConfig_UnknownField_Rejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run.yaml", "modle: pk1cmt\n")

	_, err := LoadRunConfig(path)

	assert.Error(t, err)
}

func TestRunConfig_ResolveNames(t *testing.T) {
	m, err := sim.NewModel("pk2cmt")
	require.NoError(t, err)
	cfg := DefaultRunConfig()

	req, err := cfg.ResolveRequest(m)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, req)

	cfg.Request = []string{"PERIPH", "CENT"}
	req, err = cfg.ResolveRequest(m)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, req)

	cfg.Capture = []string{"AUC"}
	_, err = cfg.ResolveCapture(m)
	assert.Error(t, err)

	cfg.Params = map[string]float64{"Q": 3}
	params, err := cfg.ResolveParams(m)
	require.NoError(t, err)
	i, _ := sim.ParamIndex(m, "Q")
	assert.Equal(t, 3.0, params[i])

	cfg.Inits = map[string]float64{"GUT": 1}
	_, err = cfg.ResolveInits(m)
	assert.ErrorIs(t, err, sim.ErrCompartment)
}

func TestApplyFlagOverrides_OnlyChangedFlags(t *testing.T) {
	// GIVEN a run.yaml with data and sqlite paths
	cfg := DefaultRunConfig()
	cfg.Data = "yaml.csv"
	cfg.SQLite = "yaml.db"
	t.Cleanup(func() { dataPath, workers = "", 1 })

	// WHEN --data and --workers are set on the command line
	require.NoError(t, runCmd.Flags().Set("data", "flag.csv"))
	require.NoError(t, runCmd.Flags().Set("workers", "3"))
	applyFlagOverrides(runCmd, &cfg)

	// THEN only those fields change
	assert.Equal(t, "flag.csv", cfg.Data)
	assert.Equal(t, 3, cfg.Options.Workers)
	assert.Equal(t, "yaml.db", cfg.SQLite)
}

func TestRunSimulation_EndToEnd(t *testing.T) {
	// GIVEN a dataset, random effects and every sink configured
	dir := t.TempDir()
	cfg := DefaultRunConfig()
	cfg.Data = writeFile(t, dir, "data.csv", "ID,time,evid,amt,cmt,ii,addl\n1,0,1,100,2,12,1\n1,24,0,.,.,.,.\n2,0,1,50,2,0,0\n2,24,0,.,.,.,.\n")
	cfg.Eta = writeFile(t, dir, "eta.csv", "ETA1\n0\n0.5\n")
	cfg.Request = []string{"CENT"}
	cfg.Capture = []string{"CP"}
	cfg.CarryTran = []string{"evid"}
	cfg.SQLite = filepath.Join(dir, "out.db")
	cfg.MetricsOut = filepath.Join(dir, "metrics.prom")
	var out bytes.Buffer

	// WHEN run
	res, tr, err := runSimulation(context.Background(), cfg, trace.TraceLevelDecisions, &out)

	// THEN the CSV has a header and one line per row
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "ID,time,evid,CENT,CP", lines[0])
	assert.Len(t, lines, 1+res.Rows())
	assert.Equal(t, 4, res.Rows())
	assert.Equal(t, 1, res.Stats.AdditionalDoses)
	assert.Len(t, tr.Schedules, 1)

	// AND metrics and SQLite are written
	prom, err := os.ReadFile(cfg.MetricsOut)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "popsim_subjects_total 2")
	store, err := sink.OpenStore(cfg.SQLite)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
}

func TestRunSimulation_UnknownModel(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.Model = "pk9cmt"

	_, _, err := runSimulation(context.Background(), cfg, trace.TraceLevelNone, &bytes.Buffer{})

	assert.ErrorIs(t, err, sim.ErrUnknownModel)
}

func TestListModels(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, listModels(&buf))

	out := buf.String()
	assert.Contains(t, out, "pk1cmt\n")
	assert.Contains(t, out, "pkstop\n")
	assert.Contains(t, out, "TSTOP=+Inf")
}
