package schemes

import (
	"math"

	"github.com/musicinmybrain/simframe/internal/num"
)

// Controller holds the step-size control parameters of an adaptive scheme.
type Controller struct {
	Atol     float64 // absolute error tolerance
	Rtol     float64 // relative error tolerance
	Safety   float64 // safety factor applied to every step-size change
	MinScale float64 // floor on the shrink factor of a rejected step
	MaxScale float64 // cap on the growth factor of an accepted step
}

func DefaultController() Controller {
	return Controller{
		Atol:     1e-9,
		Rtol:     1e-6,
		Safety:   0.9,
		MinScale: 0.2,
		MaxScale: 5.0,
	}
}

func (c Controller) withDefaults() Controller {
	d := DefaultController()
	if c.Atol <= 0 {
		c.Atol = d.Atol
	}
	if c.Rtol <= 0 {
		c.Rtol = d.Rtol
	}
	if c.Safety <= 0 {
		c.Safety = d.Safety
	}
	if c.MinScale <= 0 {
		c.MinScale = d.MinScale
	}
	if c.MaxScale <= 0 {
		c.MaxScale = d.MaxScale
	}
	return c
}

// EmbeddedRK is an adaptive explicit Runge-Kutta scheme with an embedded
// lower-order error estimate. The e coefficients are the difference between
// the propagated weights and the embedded weights, so the error estimate is
// h * sum(e_i * k_i).
type EmbeddedRK struct {
	tableau ExplicitRK
	e       []float64
	ctrl    Controller
}

func (s *EmbeddedRK) Name() string { return s.tableau.name }
func (s *EmbeddedRK) Kind() Kind   { return KindAdaptive }
func (s *EmbeddedRK) Order() int   { return s.tableau.order }

func (s *EmbeddedRK) Propose(f Derivative, x float64, y num.Value, h float64) (Proposal, error) {
	k := s.tableau.stages(f, x, y, h)

	yn := y.Clone()
	for i, bi := range s.tableau.b {
		if bi != 0 {
			yn = yn.AddScaled(k[i], h*bi)
		}
	}

	// Elementwise error relative to tolerance, reduced by RMS.
	sum := 0.0
	for i := 0; i < y.Size(); i++ {
		est := 0.0
		for j, ej := range s.e {
			if ej != 0 {
				est += ej * k[j].At(i)
			}
		}
		est *= h
		scale := s.ctrl.Atol + s.ctrl.Rtol*(math.Abs(y.At(i))+math.Abs(h*k[0].At(i)))
		r := est / scale
		sum += r * r
	}
	norm := math.Sqrt(sum / float64(y.Size()))

	var factor float64
	if norm > 1 {
		factor = math.Max(s.ctrl.MinScale, s.ctrl.Safety*math.Pow(norm, -1.0/float64(s.tableau.order)))
	} else if norm > 0 {
		// An accepted step never shrinks: for norms just under tolerance
		// the growth formula dips below 1, so floor it there.
		factor = s.ctrl.Safety * math.Pow(norm, -1.0/float64(s.tableau.order+1))
		factor = math.Min(s.ctrl.MaxScale, math.Max(1, factor))
	} else {
		factor = s.ctrl.MaxScale
	}

	return Proposal{Value: yn, Err: norm, Factor: factor}, nil
}

// HeunEuler is the adaptive 2nd-order Heun scheme with an embedded Euler
// error estimate.
func HeunEuler(ctrl Controller) *EmbeddedRK {
	return &EmbeddedRK{
		tableau: ExplicitRK{
			name:  "expl_2_heun_euler_adptv",
			order: 2,
			a:     [][]float64{{1}},
			b:     []float64{0.5, 0.5},
			c:     []float64{0, 1},
		},
		e:    []float64{0.5 - 1.0, 0.5},
		ctrl: ctrl.withDefaults(),
	}
}

// BogackiShampine is the adaptive 3rd-order Bogacki-Shampine scheme with an
// embedded 2nd-order error estimate. The last stage is evaluated at the
// proposed solution (FSAL).
func BogackiShampine(ctrl Controller) *EmbeddedRK {
	b := []float64{2.0 / 9.0, 1.0 / 3.0, 4.0 / 9.0, 0}
	bs := []float64{7.0 / 24.0, 0.25, 1.0 / 3.0, 1.0 / 8.0}
	e := make([]float64, 4)
	for i := range e {
		e[i] = b[i] - bs[i]
	}
	return &EmbeddedRK{
		tableau: ExplicitRK{
			name:  "expl_3_bogacki_shampine_adptv",
			order: 3,
			a:     [][]float64{{0.5}, {0, 0.75}, {2.0 / 9.0, 1.0 / 3.0, 4.0 / 9.0}},
			b:     b,
			c:     []float64{0, 0.5, 0.75, 1},
		},
		e:    e,
		ctrl: ctrl.withDefaults(),
	}
}

// DormandPrince is the adaptive 5th-order Dormand-Prince scheme with an
// embedded 4th-order error estimate. The 7th stage is evaluated at the
// proposed solution (FSAL).
func DormandPrince(ctrl Controller) *EmbeddedRK {
	b := []float64{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0, 0}
	bs := []float64{5179.0 / 57600.0, 0, 7571.0 / 16695.0, 393.0 / 640.0, -92097.0 / 339200.0, 187.0 / 2100.0, 1.0 / 40.0}
	e := make([]float64, 7)
	for i := range e {
		e[i] = b[i] - bs[i]
	}
	return &EmbeddedRK{
		tableau: ExplicitRK{
			name:  "expl_5_dormand_prince_adptv",
			order: 5,
			a: [][]float64{
				{1.0 / 5.0},
				{3.0 / 40.0, 9.0 / 40.0},
				{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
				{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
				{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
				{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0},
			},
			b: b,
			c: []float64{0, 1.0 / 5.0, 3.0 / 10.0, 4.0 / 5.0, 8.0 / 9.0, 1, 1},
		},
		e:    e,
		ctrl: ctrl.withDefaults(),
	}
}
