package schemes

import (
	"errors"

	"github.com/musicinmybrain/simframe/internal/num"
)

// Derivative evaluates dY/dx at the given value of the independent variable.
// Implementations close over whatever context they need. The y argument may
// alias a scheme's live stage buffer and must not be mutated.
type Derivative func(x float64, y num.Value) num.Value

// Kind classifies a scheme by its stepping strategy.
type Kind int

const (
	KindExplicit Kind = iota
	KindAdaptive
	KindImplicit
)

func (k Kind) String() string {
	switch k {
	case KindExplicit:
		return "explicit"
	case KindAdaptive:
		return "adaptive"
	case KindImplicit:
		return "implicit"
	default:
		return "unknown"
	}
}

// Proposal is the outcome of one scheme invocation. The caller decides
// acceptance: Err <= 1 means the step is within tolerance (fixed-stage and
// implicit schemes always report 0). Factor is the suggested scale for the
// next step size; on rejection it is the scale for the retry.
type Proposal struct {
	Value  num.Value
	Err    float64
	Factor float64
}

// Accepted reports whether the proposal met its error tolerance.
func (p Proposal) Accepted() bool { return p.Err <= 1 }

// Scheme is a pluggable integration scheme. Propose computes the candidate
// next value of y after a step of size h without committing anything; the
// caller owns acceptance, retry, and commit.
type Scheme interface {
	Name() string
	Kind() Kind
	Order() int
	Propose(f Derivative, x float64, y num.Value, h float64) (Proposal, error)
}

// ErrNoConvergence indicates an implicit solve exhausted its iteration
// budget without meeting its tolerance.
var ErrNoConvergence = errors.New("schemes: implicit iteration did not converge")
