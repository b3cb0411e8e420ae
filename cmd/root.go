package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/popsim/sim"
	_ "github.com/inference-sim/popsim/sim/model" // registers built-in models
	"github.com/inference-sim/popsim/sim/sink"
	"github.com/inference-sim/popsim/sim/trace"
)

var (
	// CLI flags; path flags override the matching run.yaml fields
	configPath  string // run.yaml
	dataPath    string // event dataset CSV
	idataPath   string // per-subject covariates CSV
	etaPath     string // between-subject random effects CSV
	epsPath     string // within-subject random effects CSV
	outPath     string // CSV output, stdout when empty
	sqlitePath  string // SQLite results database
	metricsPath string // Prometheus textfile output
	traceLevel  string // Trace verbosity level
	workers     int    // Subjects simulated concurrently
	logLevel    string // Log verbosity level
	summarize   bool   // Print run summary to stderr
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "popsim",
	Short: "Population ODE simulator for dosing and observation records",
}

// runCmd executes the simulation described by run.yaml and the CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a population simulation",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s (valid: none, decisions)", traceLevel)
		}

		cfg, err := LoadRunConfig(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		applyFlagOverrides(cmd, &cfg)
		if cfg.Options.Debug {
			logrus.SetLevel(logrus.DebugLevel)
		} else if cfg.Options.Verbose && level < logrus.InfoLevel {
			logrus.SetLevel(logrus.InfoLevel)
		}

		startTime := time.Now()
		out := io.Writer(os.Stdout)
		if cfg.Out != "" {
			f, err := os.Create(cfg.Out)
			if err != nil {
				logrus.Fatalf("Failed to create output file: %v", err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}
		res, tr, err := runSimulation(cmd.Context(), cfg, trace.TraceLevel(traceLevel), out)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		if summarize {
			res.Stats.Print(os.Stderr)
			if tr.Config.Enabled() {
				printTraceSummary(os.Stderr, trace.Summarize(tr))
			}
		}
		logrus.Infof("Simulation complete in %s", time.Since(startTime))
	},
}

// modelsCmd lists the registered models
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List built-in models",
	Run: func(cmd *cobra.Command, args []string) {
		if err := listModels(cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// applyFlagOverrides copies explicitly set flags over the run.yaml values.
func applyFlagOverrides(cmd *cobra.Command, cfg *RunConfig) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("data", &cfg.Data, dataPath)
	set("idata", &cfg.IData, idataPath)
	set("eta", &cfg.Eta, etaPath)
	set("eps", &cfg.Eps, epsPath)
	set("out", &cfg.Out, outPath)
	set("sqlite", &cfg.SQLite, sqlitePath)
	set("metrics-out", &cfg.MetricsOut, metricsPath)
	if cmd.Flags().Changed("workers") {
		cfg.Options.Workers = workers
	}
}

// runSimulation builds the model and inputs, runs the simulation and writes
// every configured sink. CSV output goes to out.
func runSimulation(ctx context.Context, cfg RunConfig, level trace.TraceLevel, out io.Writer) (*sim.Result, *trace.SimulationTrace, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := sim.NewModel(cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	in, err := cfg.Inputs(m)
	if err != nil {
		return nil, nil, err
	}
	logrus.Infof("Starting simulation: model=%s, sort mode=%d, workers=%d",
		m.Name(), cfg.Options.RecordSortMode, cfg.Options.Workers)

	s, err := sim.NewSimulator(m, in, cfg.Options)
	if err != nil {
		return nil, nil, err
	}
	reg := prometheus.NewRegistry()
	s.Metrics = sim.NewMetrics(reg)
	s.Trace = trace.NewSimulationTrace(trace.TraceConfig{Level: level})

	res, err := s.Run()
	if err != nil {
		return nil, nil, err
	}

	if err := sink.WriteCSV(out, res); err != nil {
		return nil, nil, fmt.Errorf("writing CSV: %w", err)
	}
	if cfg.SQLite != "" {
		store, err := sink.OpenStore(cfg.SQLite)
		if err != nil {
			return nil, nil, err
		}
		defer func() { _ = store.Close() }()
		if _, err := store.SaveRun(ctx, m.Name(), res); err != nil {
			return nil, nil, err
		}
	}
	if cfg.MetricsOut != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsOut, reg); err != nil {
			return nil, nil, fmt.Errorf("writing metrics: %w", err)
		}
	}
	return res, s.Trace, nil
}

func printTraceSummary(w io.Writer, ts *trace.TraceSummary) {
	_, _ = fmt.Fprintln(w, "=== Trace Summary ===")
	_, _ = fmt.Fprintf(w, "Scheduling Decisions : %d\n", ts.TotalDecisions)
	for _, k := range []trace.ScheduleKind{trace.KindAdditionalDose, trace.KindInfusionEnd, trace.KindLagPhantom, trace.KindMtime} {
		if n := ts.ByKind[k]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %-19s: %d\n", k, n)
		}
	}
	_, _ = fmt.Fprintf(w, "Subjects Traced      : %d\n", ts.Subjects)
	_, _ = fmt.Fprintf(w, "System Shutoffs      : %d\n", ts.Shutoffs)
	if ts.MaxLag > 0 {
		_, _ = fmt.Fprintf(w, "Lag Mean / Max       : %g / %g\n", ts.MeanLag, ts.MaxLag)
	}
}

func listModels(w io.Writer) error {
	for _, name := range sim.ModelNames() {
		m, err := sim.NewModel(name)
		if err != nil {
			return err
		}
		params := make([]string, 0, len(m.Params()))
		for _, p := range m.Params() {
			params = append(params, fmt.Sprintf("%s=%g", p.Name, p.Value))
		}
		cmts := make([]string, 0, len(m.Compartments()))
		for _, c := range m.Compartments() {
			cmts = append(cmts, c.Name)
		}
		_, _ = fmt.Fprintf(w, "%s\n  compartments: %s\n  parameters:   %s\n  captures:     %s\n",
			name, strings.Join(cmts, ", "), strings.Join(params, ", "), strings.Join(m.Captures(), ", "))
	}
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Run configuration YAML")
	runCmd.Flags().StringVar(&dataPath, "data", "", "Event dataset CSV (ID, time, evid, amt, cmt, ...)")
	runCmd.Flags().StringVar(&idataPath, "idata", "", "Per-subject covariate CSV keyed by ID")
	runCmd.Flags().StringVar(&etaPath, "eta", "", "Between-subject random effects CSV, one row per subject")
	runCmd.Flags().StringVar(&epsPath, "eps", "", "Within-subject random effects CSV, one row per output row")
	runCmd.Flags().StringVar(&outPath, "out", "", "Output CSV path (default stdout)")
	runCmd.Flags().StringVar(&sqlitePath, "sqlite", "", "Also store results in this SQLite database")
	runCmd.Flags().StringVar(&metricsPath, "metrics-out", "", "Write Prometheus metrics to this textfile")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Trace level (none, decisions)")
	runCmd.Flags().IntVar(&workers, "workers", 1, "Subjects simulated concurrently")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().BoolVar(&summarize, "summary", false, "Print a run summary to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modelsCmd)
}
