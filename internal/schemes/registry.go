package schemes

import (
	"fmt"
	"sort"
)

// New builds a scheme by its registry name. Adaptive schemes take their
// tolerances from ctrl; implicit schemes take tol and maxIter.
func New(name string, ctrl Controller, maxIter int, damping float64) (Scheme, error) {
	switch name {
	case "euler":
		return Euler(), nil
	case "heun":
		return Heun(), nil
	case "midpoint":
		return Midpoint(), nil
	case "ralston":
		return Ralston(), nil
	case "kutta3":
		return Kutta3(), nil
	case "ssprk3":
		return SSPRK3(), nil
	case "rk4":
		return RK4(), nil
	case "38rule":
		return Rule38(), nil
	case "heuneuler":
		return HeunEuler(ctrl), nil
	case "bogacki":
		return BogackiShampine(ctrl), nil
	case "dopri":
		return DormandPrince(ctrl), nil
	case "impl-fixed":
		return FixedPointEuler(ctrl.Atol, maxIter), nil
	case "impl-newton":
		return NewtonEuler(ctrl.Atol, maxIter, damping), nil
	default:
		return nil, fmt.Errorf("schemes: unknown scheme %q", name)
	}
}

// Names lists the registry names accepted by New, sorted.
func Names() []string {
	names := []string{
		"euler", "heun", "midpoint", "ralston", "kutta3", "ssprk3", "rk4",
		"38rule", "heuneuler", "bogacki", "dopri", "impl-fixed", "impl-newton",
	}
	sort.Strings(names)
	return names
}
