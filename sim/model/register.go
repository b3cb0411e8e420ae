// register.go makes the built-in models available through sim.NewModel. The
// init() runs when any package imports sim/model; the CLI imports it directly
// and tests in package sim use a blank import.
package model

import "github.com/inference-sim/popsim/sim"

func init() {
	sim.RegisterModel(PK1Name, func() sim.Model { return NewPK1() })
	sim.RegisterModel(PK2Name, func() sim.Model { return NewPK2() })
	sim.RegisterModel(PKStopName, func() sim.Model { return NewPKStop() })
}
