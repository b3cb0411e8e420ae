package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// rhsFunc writes dy/dt at (t, y) into dydt.
type rhsFunc func(t float64, y, dydt []float64)

// Dormand-Prince 5(4) tableau.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	dpE = [7]float64{71.0 / 57600, 0, -71.0 / 16695, 71.0 / 1920, -17253.0 / 339200, 22.0 / 525, -1.0 / 40}
)

// integrator is an adaptive Dormand-Prince RK45 solver with FSAL.
// Work buffers are reused across calls; not safe for concurrent use.
type integrator struct {
	cfg   IntegratorConfig
	n     int
	k     [7][]float64
	ynew  []float64
	yerr  []float64
	steps int // accepted steps since construction
}

func newIntegrator(n int, cfg IntegratorConfig) *integrator {
	in := &integrator{cfg: cfg, n: n, ynew: make([]float64, n), yerr: make([]float64, n)}
	for i := range in.k {
		in.k[i] = make([]float64, n)
	}
	return in
}

// integrate advances y in place from t0 to t1.
func (in *integrator) integrate(f rhsFunc, t0, t1 float64, y []float64) error {
	span := t1 - t0
	if span <= 0 || in.n == 0 {
		return nil
	}
	f(t0, y, in.k[0])
	h := in.initialStep(y, span)
	t := t0
	taken := 0
	for t < t1 {
		if taken >= in.cfg.MaxSteps {
			return fmt.Errorf("%w (%d steps, t=%g)", ErrMaxSteps, taken, t)
		}
		last := false
		if t+h >= t1 {
			h = t1 - t
			last = true
		}
		for s := 1; s < 7; s++ {
			in.stage(in.ynew, y, h, dpA[s])
			if s < 6 {
				f(t+dpC[s]*h, in.ynew, in.k[s])
			}
		}
		// ynew now holds the 5th order solution (row 7 of the tableau).
		f(t+h, in.ynew, in.k[6])

		for i := range in.yerr {
			in.yerr[i] = 0
		}
		for s, e := range dpE {
			if e != 0 {
				floats.AddScaled(in.yerr, h*e, in.k[s])
			}
		}
		errNorm := in.errorNorm(y, in.ynew, in.yerr)
		if math.IsNaN(errNorm) {
			errNorm = math.Inf(1)
		}

		if errNorm <= 1 {
			copy(y, in.ynew)
			in.k[0], in.k[6] = in.k[6], in.k[0]
			taken++
			in.steps++
			if last {
				return nil
			}
			t += h
		}

		factor := 5.0
		if errNorm > 0 {
			factor = math.Min(5, math.Max(0.2, 0.9*math.Pow(errNorm, -0.2)))
		}
		h *= factor
		if in.cfg.HMax > 0 && h > in.cfg.HMax {
			h = in.cfg.HMax
		}
		if h < 1e-14*math.Max(1, math.Abs(t)) {
			return fmt.Errorf("%w (h=%g, t=%g)", ErrStepTooSmall, h, t)
		}
	}
	return nil
}

// stage sets dst = y + h * sum(a[j] * k[j]).
func (in *integrator) stage(dst, y []float64, h float64, a []float64) {
	copy(dst, y)
	for j, aj := range a {
		if aj != 0 {
			floats.AddScaled(dst, h*aj, in.k[j])
		}
	}
}

// errorNorm is the RMS of the local error scaled by atol + rtol*|y|.
func (in *integrator) errorNorm(y, ynew, yerr []float64) float64 {
	var sum float64
	for i := range yerr {
		sc := in.cfg.ATol + in.cfg.RTol*math.Max(math.Abs(y[i]), math.Abs(ynew[i]))
		r := yerr[i] / sc
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(yerr)))
}

// initialStep picks a first step from the scaled state and derivative norms.
func (in *integrator) initialStep(y []float64, span float64) float64 {
	var d0, d1 float64
	for i := range y {
		sc := in.cfg.ATol + in.cfg.RTol*math.Abs(y[i])
		d0 += (y[i] / sc) * (y[i] / sc)
		d1 += (in.k[0][i] / sc) * (in.k[0][i] / sc)
	}
	d0 = math.Sqrt(d0 / float64(len(y)))
	d1 = math.Sqrt(d1 / float64(len(y)))
	h := 1e-6 * span
	if d0 > 1e-5 && d1 > 1e-5 {
		h = 0.01 * d0 / d1
	}
	h = math.Min(h, span)
	if in.cfg.HMax > 0 {
		h = math.Min(h, in.cfg.HMax)
	}
	return h
}
