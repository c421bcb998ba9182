package schemes

import "github.com/musicinmybrain/simframe/internal/num"

// ExplicitRK is a fixed-stage explicit Runge-Kutta scheme driven by a
// lower-triangular Butcher tableau. It is pure: no state survives a step
// beyond the tableau constants.
type ExplicitRK struct {
	name  string
	order int
	a     [][]float64 // row i holds the i coefficients feeding stage i+1
	b     []float64
	c     []float64
}

func (s *ExplicitRK) Name() string { return s.name }
func (s *ExplicitRK) Kind() Kind   { return KindExplicit }
func (s *ExplicitRK) Order() int   { return s.order }

func (s *ExplicitRK) stages(f Derivative, x float64, y num.Value, h float64) []num.Value {
	k := make([]num.Value, len(s.b))
	k[0] = f(x, y)
	for i := 1; i < len(s.b); i++ {
		yi := y.Clone()
		for j, aij := range s.a[i-1] {
			if aij != 0 {
				yi = yi.AddScaled(k[j], h*aij)
			}
		}
		k[i] = f(x+s.c[i]*h, yi)
	}
	return k
}

func (s *ExplicitRK) Propose(f Derivative, x float64, y num.Value, h float64) (Proposal, error) {
	k := s.stages(f, x, y, h)
	yn := y.Clone()
	for i, bi := range s.b {
		if bi != 0 {
			yn = yn.AddScaled(k[i], h*bi)
		}
	}
	return Proposal{Value: yn, Factor: 1}, nil
}

// Euler is the explicit 1st-order Euler scheme.
func Euler() *ExplicitRK {
	return &ExplicitRK{
		name:  "expl_1_euler",
		order: 1,
		b:     []float64{1},
		c:     []float64{0},
	}
}

// Heun is the explicit 2nd-order Heun scheme.
func Heun() *ExplicitRK {
	return &ExplicitRK{
		name:  "expl_2_heun",
		order: 2,
		a:     [][]float64{{1}},
		b:     []float64{0.5, 0.5},
		c:     []float64{0, 1},
	}
}

// Midpoint is the explicit 2nd-order midpoint scheme.
func Midpoint() *ExplicitRK {
	return &ExplicitRK{
		name:  "expl_2_midpoint",
		order: 2,
		a:     [][]float64{{0.5}},
		b:     []float64{0, 1},
		c:     []float64{0, 0.5},
	}
}

// Ralston is the explicit 2nd-order Ralston scheme.
func Ralston() *ExplicitRK {
	return &ExplicitRK{
		name:  "expl_2_ralston",
		order: 2,
		a:     [][]float64{{2.0 / 3.0}},
		b:     []float64{0.25, 0.75},
		c:     []float64{0, 2.0 / 3.0},
	}
}

// Kutta3 is the explicit 3rd-order Kutta scheme.
func Kutta3() *ExplicitRK {
	return &ExplicitRK{
		name:  "expl_3_kutta",
		order: 3,
		a:     [][]float64{{0.5}, {-1, 2}},
		b:     []float64{1.0 / 6.0, 2.0 / 3.0, 1.0 / 6.0},
		c:     []float64{0, 0.5, 1},
	}
}

// SSPRK3 is the explicit 3rd-order strong stability preserving Runge-Kutta
// scheme.
func SSPRK3() *ExplicitRK {
	return &ExplicitRK{
		name:  "expl_3_ssprk",
		order: 3,
		a:     [][]float64{{1}, {0.25, 0.25}},
		b:     []float64{1.0 / 6.0, 1.0 / 6.0, 2.0 / 3.0},
		c:     []float64{0, 1, 0.5},
	}
}

// RK4 is the classic explicit 4th-order Runge-Kutta scheme.
func RK4() *ExplicitRK {
	return &ExplicitRK{
		name:  "expl_4_rungekutta",
		order: 4,
		a:     [][]float64{{0.5}, {0, 0.5}, {0, 0, 1}},
		b:     []float64{1.0 / 6.0, 1.0 / 3.0, 1.0 / 3.0, 1.0 / 6.0},
		c:     []float64{0, 0.5, 0.5, 1},
	}
}

// Rule38 is the explicit 4th-order 3/8 rule.
func Rule38() *ExplicitRK {
	return &ExplicitRK{
		name:  "expl_4_38rule",
		order: 4,
		a:     [][]float64{{1.0 / 3.0}, {-1.0 / 3.0, 1}, {1, -1, 1}},
		b:     []float64{1.0 / 8.0, 3.0 / 8.0, 3.0 / 8.0, 1.0 / 8.0},
		c:     []float64{0, 1.0 / 3.0, 2.0 / 3.0, 1},
	}
}
