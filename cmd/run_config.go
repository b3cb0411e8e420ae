package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/popsim/sim"
	"github.com/inference-sim/popsim/sim/data"
)

// DesignConfig describes one simulation-time design: start, start+delta, ...
// up to end, plus the extra times in add.
type DesignConfig struct {
	Start float64   `yaml:"start"`
	End   float64   `yaml:"end"`
	Delta float64   `yaml:"delta"`
	Add   []float64 `yaml:"add"`
}

// RunConfig represents a run.yaml file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Model   string             `yaml:"model"`
	Params  map[string]float64 `yaml:"params"`
	Inits   map[string]float64 `yaml:"inits"`
	Options sim.Options        `yaml:"options"`

	Designs     []DesignConfig `yaml:"designs"`
	DesignIndex []int          `yaml:"design_index"`
	Padded      []float64      `yaml:"padded"`

	Request    []string `yaml:"request"` // compartment names; "*" selects all
	Capture    []string `yaml:"capture"` // capture names; "*" selects all
	CarryTran  []string `yaml:"carry_tran"`
	CarryData  []string `yaml:"carry_data"`
	CarryIData []string `yaml:"carry_idata"`

	Data  string `yaml:"data"`
	IData string `yaml:"idata"`
	Eta   string `yaml:"eta"`
	Eps   string `yaml:"eps"`

	Out        string `yaml:"out"`
	SQLite     string `yaml:"sqlite"`
	MetricsOut string `yaml:"metrics_out"`
}

// DefaultRunConfig returns the configuration used when run.yaml omits a field:
// the one-compartment model observed hourly over a day.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Model:   "pk1cmt",
		Options: sim.DefaultOptions(),
		Designs: []DesignConfig{{Start: 0, End: 24, Delta: 1}},
		Request: []string{"*"},
		Capture: []string{"*"},
	}
}

// LoadRunConfig parses path over DefaultRunConfig with strict field checking:
// typos must cause errors.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing run config %s: %w", path, err)
	}
	return cfg, nil
}

// Grid expands the configured designs.
func (c RunConfig) Grid() (sim.TimeGrid, error) {
	grid := sim.TimeGrid{DesignIndex: c.DesignIndex, Padded: c.Padded}
	for i, d := range c.Designs {
		times, err := sim.NewDesign(d.Start, d.End, d.Delta, d.Add)
		if err != nil {
			return grid, fmt.Errorf("design %d: %w", i, err)
		}
		grid.Designs = append(grid.Designs, times)
	}
	return grid, nil
}

// ResolveParams returns m's parameter defaults with the configured overrides.
func (c RunConfig) ResolveParams(m sim.Model) ([]float64, error) {
	out := make([]float64, len(m.Params()))
	for i, p := range m.Params() {
		out[i] = p.Value
	}
	for name, v := range c.Params {
		i, ok := sim.ParamIndex(m, name)
		if !ok {
			return nil, fmt.Errorf("model %s has no parameter %q", m.Name(), name)
		}
		out[i] = v
	}
	return out, nil
}

// ResolveInits returns m's initial amounts with the configured overrides.
func (c RunConfig) ResolveInits(m sim.Model) ([]float64, error) {
	out := make([]float64, len(m.Compartments()))
	for i, cmt := range m.Compartments() {
		out[i] = cmt.Init
	}
	for name, v := range c.Inits {
		i, ok := sim.CompartmentIndex(m, name)
		if !ok {
			return nil, fmt.Errorf("%w: model %s has no compartment %q", sim.ErrCompartment, m.Name(), name)
		}
		out[i] = v
	}
	return out, nil
}

// ResolveRequest maps requested compartment names to indices.
func (c RunConfig) ResolveRequest(m sim.Model) ([]int, error) {
	return resolveNames(c.Request, len(m.Compartments()), func(n string) (int, bool) {
		return sim.CompartmentIndex(m, n)
	}, "compartment")
}

// ResolveCapture maps capture names to indices.
func (c RunConfig) ResolveCapture(m sim.Model) ([]int, error) {
	return resolveNames(c.Capture, len(m.Captures()), func(n string) (int, bool) {
		return sim.CaptureIndex(m, n)
	}, "capture")
}

func resolveNames(names []string, n int, lookup func(string) (int, bool), kind string) ([]int, error) {
	var out []int
	for _, name := range names {
		if name == "*" {
			out = out[:0]
			for i := 0; i < n; i++ {
				out = append(out, i)
			}
			return out, nil
		}
		i, ok := lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown %s %q", kind, name)
		}
		out = append(out, i)
	}
	return out, nil
}

// Inputs loads the tables referenced by the configuration and assembles the
// simulator inputs for m.
func (c RunConfig) Inputs(m sim.Model) (sim.Inputs, error) {
	var in sim.Inputs
	var err error
	if in.Params, err = c.ResolveParams(m); err != nil {
		return in, err
	}
	if in.Inits, err = c.ResolveInits(m); err != nil {
		return in, err
	}
	if in.Request, err = c.ResolveRequest(m); err != nil {
		return in, err
	}
	if in.Capture, err = c.ResolveCapture(m); err != nil {
		return in, err
	}
	if in.Grid, err = c.Grid(); err != nil {
		return in, err
	}
	in.CarryTran, in.CarryData, in.CarryIData = c.CarryTran, c.CarryData, c.CarryIData

	if c.Data != "" {
		t, err := data.LoadCSV(c.Data)
		if err != nil {
			return in, err
		}
		if in.Data, err = data.NewDataset(t); err != nil {
			return in, fmt.Errorf("%s: %w", c.Data, err)
		}
	}
	if c.IData != "" {
		t, err := data.LoadCSV(c.IData)
		if err != nil {
			return in, err
		}
		if in.IData, err = data.NewIData(t); err != nil {
			return in, fmt.Errorf("%s: %w", c.IData, err)
		}
	}
	if in.Eta, err = loadMatrix(c.Eta); err != nil {
		return in, err
	}
	if in.Eps, err = loadMatrix(c.Eps); err != nil {
		return in, err
	}
	return in, nil
}

// loadMatrix reads a CSV of random-effect draws, one row per subject or output
// row. The header names the effects and is otherwise ignored.
func loadMatrix(path string) (*mat.Dense, error) {
	if path == "" {
		return nil, nil
	}
	t, err := data.LoadCSV(path)
	if err != nil {
		return nil, err
	}
	if t.NRow() == 0 || len(t.Columns) == 0 {
		return nil, nil
	}
	m := mat.NewDense(t.NRow(), len(t.Columns), nil)
	for i, r := range t.Rows {
		m.SetRow(i, r)
	}
	return m, nil
}
