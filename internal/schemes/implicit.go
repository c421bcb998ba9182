package schemes

import (
	"fmt"
	"math"

	"github.com/musicinmybrain/simframe/internal/num"
)

// BackwardEuler is the implicit 1st-order Euler scheme. It solves
// y' = y + h*f(x+h, y') starting from an explicit-Euler predictor, either by
// fixed-point iteration or by damped Newton iteration with a
// finite-difference Jacobian.
//
// Non-convergence within MaxIter is a fatal step failure, not a step
// rejection: the scheme does not shrink h on its own. Compose it with the
// frame's retry loop via an adaptive scheme if step control is needed.
type BackwardEuler struct {
	name    string
	newton  bool
	Tol     float64 // convergence tolerance on the iteration update
	MaxIter int
	Damping float64 // scale applied to every Newton update, in (0, 1]
}

// FixedPointEuler builds an implicit Euler scheme using fixed-point
// iteration.
func FixedPointEuler(tol float64, maxIter int) *BackwardEuler {
	s := &BackwardEuler{name: "impl_1_euler_fixedpoint", Tol: tol, MaxIter: maxIter, Damping: 1}
	s.applyDefaults()
	return s
}

// NewtonEuler builds an implicit Euler scheme using damped Newton iteration.
func NewtonEuler(tol float64, maxIter int, damping float64) *BackwardEuler {
	s := &BackwardEuler{name: "impl_1_euler_newton", newton: true, Tol: tol, MaxIter: maxIter, Damping: damping}
	s.applyDefaults()
	return s
}

func (s *BackwardEuler) applyDefaults() {
	if s.Tol <= 0 {
		s.Tol = 1e-10
	}
	if s.MaxIter <= 0 {
		s.MaxIter = 50
	}
	if s.Damping <= 0 || s.Damping > 1 {
		s.Damping = 1
	}
}

func (s *BackwardEuler) Name() string { return s.name }
func (s *BackwardEuler) Kind() Kind   { return KindImplicit }
func (s *BackwardEuler) Order() int   { return 1 }

func (s *BackwardEuler) Propose(f Derivative, x float64, y num.Value, h float64) (Proposal, error) {
	// Explicit-Euler predictor.
	z := y.AddScaled(f(x, y), h)

	for iter := 0; iter < s.MaxIter; iter++ {
		var next num.Value
		if s.newton {
			step, err := s.newtonStep(f, x, y, z, h)
			if err != nil {
				return Proposal{}, err
			}
			next = z.AddScaled(step, s.Damping)
		} else {
			next = y.AddScaled(f(x+h, z), h)
		}

		delta := next.Sub(z).MaxAbs()
		z = next
		if delta <= s.Tol {
			return Proposal{Value: z, Factor: 1}, nil
		}
	}

	return Proposal{}, fmt.Errorf("%w: %s after %d iterations (h=%g)", ErrNoConvergence, s.name, s.MaxIter, h)
}

// newtonStep solves (I - h*J) dz = -(z - y - h*f(x+h, z)) for the Newton
// update dz, estimating J by forward differences around z.
func (s *BackwardEuler) newtonStep(f Derivative, x float64, y, z num.Value, h float64) (num.Value, error) {
	n := z.Size()
	fz := f(x+h, z)

	rhs := make([]float64, n)
	for i := 0; i < n; i++ {
		rhs[i] = -(z.At(i) - y.At(i) - h*fz.At(i))
	}

	jac := make([][]float64, n)
	for col := 0; col < n; col++ {
		eps := 1e-8 * math.Max(1, math.Abs(z.At(col)))
		zp := z.Clone()
		zp.Data()[col] += eps
		fp := f(x+h, zp)
		for row := 0; row < n; row++ {
			if jac[row] == nil {
				jac[row] = make([]float64, n)
			}
			jac[row][col] = (fp.At(row) - fz.At(row)) / eps
		}
	}

	a := make([][]float64, n)
	for row := 0; row < n; row++ {
		a[row] = make([]float64, n)
		for col := 0; col < n; col++ {
			a[row][col] = -h * jac[row][col]
		}
		a[row][row] += 1
	}

	sol, err := num.SolveDense(a, rhs)
	if err != nil {
		return num.Value{}, fmt.Errorf("%s: %w", s.name, err)
	}

	dz := num.ZerosLike(z)
	copy(dz.Data(), sol)
	return dz, nil
}
