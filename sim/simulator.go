// sim/simulator.go
package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/popsim/sim/data"
	"github.com/inference-sim/popsim/sim/trace"
)

// Inputs bundles the tabular inputs of a run. Everything except the model is optional.
type Inputs struct {
	Data  *data.Dataset
	IData *data.IData
	Eta   *mat.Dense // subjects x between-subject effects
	Eps   *mat.Dense // output rows x within-subject effects
	Grid  TimeGrid

	Params []float64 // run-level parameter values; nil keeps model defaults
	Inits  []float64 // run-level initial amounts; nil keeps model defaults

	Request    []int    // compartment indices (0-based) written to the output
	Capture    []int    // capture indices written to the output
	CarryTran  []string // subset of evid, amt, cmt, ss, ii, addl, rate, a.u.g
	CarryData  []string // dataset columns copied to the output
	CarryIData []string // idata columns copied to the output
}

// Simulator schedules and simulates every subject of a run.
type Simulator struct {
	model Model
	in    Inputs
	opts  Options

	stacks   []*RecordStack
	firstRow []int // first dataset row per subject, -1 when none
	rowStart []int // output row range of subject i is [rowStart[i], rowStart[i+1])

	obsCount int
	evCount  int
	nrow     int
	augment  bool
	neta     int
	neps     int

	layout      outputLayout
	dataParams  []data.Match
	idataParams []data.Match
	idataInits  []data.Match

	Trace   *trace.SimulationTrace
	Metrics *Metrics
}

// NewSimulator validates the configuration and assembles every subject's
// record stack. All configuration errors surface here, before simulation.
func NewSimulator(m Model, in Inputs, opts Options) (*Simulator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		model: m,
		in:    in,
		opts:  opts,
		Trace: trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelNone}),
	}
	dataRows := 0
	if in.Data != nil {
		dataRows = in.Data.NRow()
	}
	s.augment = opts.AugmentObservations && dataRows > 0

	if err := s.resolveLayout(); err != nil {
		return nil, err
	}
	if err := s.buildStacks(); err != nil {
		return nil, err
	}
	if s.obsCount == 0 || s.augment {
		added, err := expandGrid(s.stacks, in.Grid, gridPosition(opts.RecordSortMode, dataRows), in.IData)
		if err != nil {
			return nil, err
		}
		s.obsCount += added
	}

	s.nrow = s.obsCount + s.evCount
	if opts.ObservationsOnly {
		s.nrow = s.obsCount
	}
	s.rowStart = make([]int, len(s.stacks)+1)
	for i, st := range s.stacks {
		s.rowStart[i+1] = s.rowStart[i] + st.OutputCount()
	}
	if s.rowStart[len(s.stacks)] != s.nrow {
		return nil, fmt.Errorf("output row plan mismatch: %d planned, %d counted", s.rowStart[len(s.stacks)], s.nrow)
	}

	if in.Eta != nil {
		r, c := in.Eta.Dims()
		if c > 0 && r < len(s.stacks) {
			return nil, fmt.Errorf("%w: eta has %d rows for %d subjects", ErrRandomEffects, r, len(s.stacks))
		}
		s.neta = c
	}
	if in.Eps != nil {
		r, c := in.Eps.Dims()
		if c > 0 && r < s.nrow {
			return nil, fmt.Errorf("%w: eps has %d rows for %d output rows", ErrRandomEffects, r, s.nrow)
		}
		s.neps = c
	}

	paramNames := make([]string, 0, len(m.Params()))
	for _, p := range m.Params() {
		paramNames = append(paramNames, p.Name)
	}
	cmtNames := make([]string, 0, len(m.Compartments()))
	for _, c := range m.Compartments() {
		cmtNames = append(cmtNames, c.Name)
	}
	if in.Data != nil {
		s.dataParams = in.Data.MatchNames(paramNames)
	}
	if in.IData != nil {
		s.idataParams = in.IData.MatchNames(paramNames)
		s.idataInits = in.IData.MatchSuffix(cmtNames, "_0")
	}

	logrus.Infof("Assembled %d subjects: %d observations, %d events, %d output rows",
		len(s.stacks), s.obsCount, s.evCount, s.nrow)
	return s, nil
}

// resolveLayout validates requested outputs and resolves carried columns.
func (s *Simulator) resolveLayout() error {
	cmts := s.model.Compartments()
	caps := s.model.Captures()
	l := &s.layout
	for _, i := range s.in.Request {
		if i < 0 || i >= len(cmts) {
			return fmt.Errorf("%w: requested compartment %d with %d compartments", ErrCompartment, i, len(cmts))
		}
		l.request = append(l.request, i)
		l.reqNames = append(l.reqNames, cmts[i].Name)
	}
	for _, i := range s.in.Capture {
		if i < 0 || i >= len(caps) {
			return fmt.Errorf("capture index %d out of range (%d captures)", i, len(caps))
		}
		l.capture = append(l.capture, i)
		l.capNames = append(l.capNames, caps[i])
	}
	l.tran = canonicalTran(s.in.CarryTran)
	if s.in.Data != nil && len(s.in.CarryData) > 0 {
		cols, missing := s.in.Data.Lookup(s.in.CarryData)
		for _, n := range missing {
			logrus.Warnf("carry_data column %q not found in dataset", n)
		}
		l.dataCols = cols
		for _, c := range cols {
			l.dataNames = append(l.dataNames, s.in.Data.Columns[c])
		}
	}
	if s.in.IData != nil && s.in.IData.NRow() > 0 && len(s.in.CarryIData) > 0 {
		cols, missing := s.in.IData.Lookup(s.in.CarryIData)
		for _, n := range missing {
			logrus.Warnf("carry_idata column %q not found in idata", n)
		}
		l.idataCols = cols
		for _, c := range cols {
			l.idataNames = append(l.idataNames, s.in.IData.Columns[c])
		}
	}
	l.place()
	return nil
}

// Stacks returns the per-subject record stacks.
func (s *Simulator) Stacks() []*RecordStack { return s.stacks }

// NumRows returns the planned number of output rows.
func (s *Simulator) NumRows() int { return s.nrow }

// Columns returns the output column names.
func (s *Simulator) Columns() []string { return s.layout.columns() }

func (s *Simulator) newProblem() *Problem {
	return NewProblem(s.model, s.in.Params, s.in.Inits, s.neta, s.neps, s.opts.Integrator)
}

// Run simulates every subject and assembles the result. Any error aborts the
// whole run and no partial result is returned.
func (s *Simulator) Run() (*Result, error) {
	var out *mat.Dense
	if s.nrow > 0 {
		out = mat.NewDense(s.nrow, s.layout.ncol, nil)
	}
	runs := make([]*subjectRun, len(s.stacks))
	for i := range s.stacks {
		runs[i] = &subjectRun{sim: s, index: i, out: out, tracing: s.Trace.Config.Enabled()}
	}

	if s.opts.Workers > 1 {
		var g errgroup.Group
		g.SetLimit(s.opts.Workers)
		for _, r := range runs {
			g.Go(func() error {
				r.p = s.newProblem()
				return r.run()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		p := s.newProblem()
		for _, r := range runs {
			r.p = p
			if err := r.run(); err != nil {
				return nil, err
			}
		}
	}

	var stats RunStats
	for _, r := range runs {
		stats.add(r.stats)
		for _, d := range r.decisions {
			s.Trace.RecordSchedule(d)
		}
		if r.shutoff != nil {
			s.Trace.RecordShutoff(*r.shutoff)
		}
	}
	s.layout.postProcess(out, s.opts.Digits, s.opts.TimeScale)
	s.Metrics.Observe(stats)
	logrus.Infof("Simulation complete: %d subjects, %d rows", stats.Subjects, stats.Rows)

	return &Result{
		Data:      out,
		Columns:   s.layout.columns(),
		TranNames: append([]string(nil), s.layout.tran...),
		Stats:     stats,
	}, nil
}

// subjectRun is the per-subject state of the driver. Each subject writes only
// to its own precomputed output row range.
type subjectRun struct {
	sim   *Simulator
	p     *Problem
	index int
	out   *mat.Dense

	tracing   bool
	stats     RunStats
	decisions []trace.ScheduleRecord
	shutoff   *trace.ShutoffRecord
}

func (r *subjectRun) run() error {
	s := r.sim
	st := s.stacks[r.index]
	if st.Len() == 0 {
		return nil
	}
	p := r.p
	stepsBefore := p.steps()
	defer func() { r.stats.ODESteps += p.steps() - stepsBefore }()

	crow := s.rowStart[r.index]
	end := s.rowStart[r.index+1]
	id := st.ID
	tfrom := st.Records[0].Time
	maxTime := st.MaxTime()
	idataRow, hasIData := s.in.IData.Row(id)
	lastRow := s.firstRow[r.index]

	// INIT
	p.resetNewID(id)
	if r.index == 0 {
		p.newind = 0
	}
	for k := 0; k < s.neta; k++ {
		p.setEta(k, s.in.Eta.At(r.index, k))
	}
	if crow < s.nrow {
		for k := 0; k < s.neps; k++ {
			p.setEps(k, s.in.Eps.At(crow, k))
		}
	}
	p.reloadParameters()
	if hasIData {
		r.copyMatches(s.in.IData.Table, idataRow, s.idataParams, p.setParam)
	}
	if first := st.Records[0]; first.fromData {
		r.copyMatches(s.in.Data.Table, first.Row, s.dataParams, p.setParam)
	} else if s.opts.FileFillBack && lastRow >= 0 {
		r.copyMatches(s.in.Data.Table, lastRow, s.dataParams, p.setParam)
	}
	p.initY()
	if hasIData {
		r.copyMatches(s.in.IData.Table, idataRow, s.idataInits, p.setY)
	}
	p.initCall(tfrom)

	mtimes := append(append([]float64(nil), s.opts.Mtimes...), p.mtimes...)
	if n := addMtimes(st, mtimes); n > 0 {
		r.stats.Mtimes += n
		for _, rec := range st.Records {
			if rec.Pos == posMtime {
				r.record(trace.KindMtime, tfrom, rec)
			}
		}
	}
	r.stats.Subjects++
	logrus.Debugf("[subject %v] %d records, rows [%d, %d)", id, st.Len(), crow, end)

	// ADVANCING
	for j := 0; j < st.Len(); j++ {
		if crow == end {
			continue
		}
		if j != 0 {
			p.newind = 2
		}
		rec := st.Records[j]
		rec.ID = id
		r.stats.Records++
		if rec.Row >= 0 {
			lastRow = rec.Row
		}

		if p.systemOff {
			if rec.output {
				r.writeStopped(rec, crow, lastRow, idataRow, hasIData)
				crow++
			}
			continue
		}

		if rec.fromData {
			r.copyMatches(s.in.Data.Table, rec.Row, s.dataParams, p.setParam)
		}

		tto := rec.Time
		denom := tfrom
		if denom == 0 {
			denom = 1
		}
		if dt := (tto - tfrom) / denom; dt > 0 && dt < s.opts.MinimumTimeStep {
			tto = tfrom
		}
		if tto > tfrom {
			for k := 0; k < s.neps; k++ {
				p.setEps(k, s.in.Eps.At(crow, k))
			}
		}

		p.evid = rec.Evid
		p.initCallRecord(tto)

		if rec.IsDose() && rec.fromData {
			if err := r.scheduleDose(st, j, maxTime); err != nil {
				return &RecordError{Subject: id, Time: rec.Time, Evid: rec.Evid, Wrapped: err}
			}
		}

		if err := p.advance(tfrom, tto); err != nil {
			return &RecordError{Subject: id, Time: rec.Time, Evid: rec.Evid, Wrapped: err}
		}
		logrus.Debugf("[subject %v] t=%g evid=%d cmt=%d", id, tto, rec.Evid, rec.Cmt)

		if rec.Evid != EvidOther {
			if err := p.implement(rec); err != nil {
				return &RecordError{Subject: id, Time: rec.Time, Evid: rec.Evid, Wrapped: err}
			}
		}

		p.tableCall(tto)
		if p.systemOff && r.shutoff == nil {
			r.stats.Shutoffs++
			r.shutoff = &trace.ShutoffRecord{Subject: id, Time: tto, CarryForward: p.carryOnStop}
			logrus.Debugf("[subject %v] system off at t=%g", id, tto)
		}

		if rec.output {
			r.writeRow(rec, crow, lastRow, idataRow, hasIData)
			crow++
		}

		if rec.Evid == EvidOther {
			if err := p.implement(rec); err != nil {
				return &RecordError{Subject: id, Time: rec.Time, Evid: rec.Evid, Wrapped: err}
			}
		}

		tfrom = tto
	}
	return nil
}

func (r *subjectRun) copyMatches(t *data.Table, row int, matches []data.Match, set func(int, float64)) {
	for _, m := range matches {
		if v := t.Value(row, m.Col); !math.IsNaN(v) {
			set(m.Target, v)
		}
	}
}

// writeRow fills output row crow from rec and the current model state.
func (r *subjectRun) writeRow(rec *Record, crow, dataRow, idataRow int, hasIData bool) {
	s := r.sim
	l := &s.layout
	out := r.out
	p := r.p
	out.Set(crow, 0, rec.ID)
	out.Set(crow, 1, rec.Time)
	for k, name := range l.tran {
		out.Set(crow, l.tranStart+k, tranValue(name, rec, s.augment))
	}
	for k, c := range l.dataCols {
		v := math.NaN()
		if dataRow >= 0 {
			v = s.in.Data.Value(dataRow, c)
		}
		out.Set(crow, l.dataStart+k, v)
	}
	for k, c := range l.idataCols {
		v := math.NaN()
		if hasIData {
			v = s.in.IData.Value(idataRow, c)
		}
		out.Set(crow, l.idataStart+k, v)
	}
	for k, i := range l.request {
		out.Set(crow, l.reqStart+k, p.Y(i))
	}
	for k, i := range l.capture {
		out.Set(crow, l.captureStart+k, p.Capture(i))
	}
	r.stats.Rows++
}

// writeStopped fills a row after the system was turned off: the last values
// when the model asked to carry forward, NaN in every column otherwise.
func (r *subjectRun) writeStopped(rec *Record, crow, dataRow, idataRow int, hasIData bool) {
	if r.p.carryOnStop {
		r.writeRow(rec, crow, dataRow, idataRow, hasIData)
		return
	}
	for j := 0; j < r.sim.layout.ncol; j++ {
		r.out.Set(crow, j, math.NaN())
	}
	r.stats.Rows++
}
