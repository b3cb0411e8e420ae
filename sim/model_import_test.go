package sim_test

// Blank import triggers sim/model's init(), which registers the built-in models.
// This allows package sim's internal test files to call NewModel without
// directly importing sim/model (which would create an import cycle).
import _ "github.com/inference-sim/popsim/sim/model"
