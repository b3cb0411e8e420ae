package sim

import (
	"fmt"
	"sort"
)

// Param is a named model parameter with its default value.
type Param struct {
	Name  string
	Value float64
}

// Compartment is a named model state with its default initial amount.
type Compartment struct {
	Name string
	Init float64
}

// Model is a compiled ODE model. The driver calls Main before each record,
// ODE while advancing, and Table after the record's effect is applied.
// Implementations read and write simulation state through the Problem.
type Model interface {
	Name() string
	Params() []Param
	Compartments() []Compartment
	Captures() []string

	// Main computes per-record quantities: bioavailability, infusion rate and
	// duration, lag time, and (during initialization) initial conditions.
	Main(p *Problem)
	// ODE writes dy/dt for state y at time t. Infusion inputs are added by the caller.
	ODE(p *Problem, t float64, y, dydt []float64)
	// Table sets captured outputs and may stop the system.
	Table(p *Problem)
}

// modelRegistry holds model constructors registered by sub-packages (sim/model).
var modelRegistry = map[string]func() Model{}

// RegisterModel makes a model constructor available by name. Intended for init().
func RegisterModel(name string, ctor func() Model) {
	modelRegistry[name] = ctor
}

// NewModel constructs a registered model.
func NewModel(name string) (Model, error) {
	ctor, ok := modelRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownModel, name, ModelNames())
	}
	return ctor(), nil
}

// ModelNames returns registered model names in sorted order.
func ModelNames() []string {
	names := make([]string, 0, len(modelRegistry))
	for n := range modelRegistry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParamIndex returns the position of a named parameter in m.Params().
func ParamIndex(m Model, name string) (int, bool) {
	for i, p := range m.Params() {
		if p.Name == name {
			return i, true
		}
	}
	return -1, false
}

// CompartmentIndex returns the position of a named compartment in m.Compartments().
func CompartmentIndex(m Model, name string) (int, bool) {
	for i, c := range m.Compartments() {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// CaptureIndex returns the position of a named capture in m.Captures().
func CaptureIndex(m Model, name string) (int, bool) {
	for i, c := range m.Captures() {
		if c == name {
			return i, true
		}
	}
	return -1, false
}
