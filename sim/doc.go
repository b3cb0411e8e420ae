// Package sim provides the record-scheduling engine of the population simulator.
//
// # Reading Guide
//
// Start with these files to understand a run:
//   - record.go, stack.go: event records and the per-subject time-ordered stack
//   - schedule.go: dose resolution, additional doses, infusion ends and lag phantoms
//   - simulator.go: assembly of every subject's stack and the per-record driver loop
//
// # Architecture
//
// The sim package defines the Model interface and the Problem handle models
// read and write; implementations live in sub-packages:
//   - sim/data/: dataset and idata tables, CSV loading
//   - sim/model/: built-in pharmacokinetic models
//   - sim/sink/: CSV and SQLite result writers
//   - sim/trace/: scheduling decision trace recording
//
// sim/model registers its models via init() through RegisterModel, so callers
// import it for side effects and construct models with NewModel.
//
// # Ordering
//
// Records sort by time, then by position: dataset records use their row index,
// generated records use sentinels chosen by the record sort mode (1-4) so that
// ties between grid observations, additional doses and dataset events resolve
// deterministically.
package sim
