package models

import (
	"fmt"

	"github.com/musicinmybrain/simframe/internal/config"
	"github.com/musicinmybrain/simframe/internal/frame"
	"github.com/musicinmybrain/simframe/internal/num"
	"github.com/musicinmybrain/simframe/internal/schemes"
)

// Decay builds exponential decay dy/dt = -k*y. The decay constant lives in
// the tree as a sticky parameter field; a derived rate field recomputes from
// y on every update pass.
func Decay(cfg *config.Config, s schemes.Scheme) (*frame.Frame, error) {
	fr, err := newFrame(cfg, "exponential decay")
	if err != nil {
		return nil, err
	}
	sys, err := fr.Root().AddGroup("sys")
	if err != nil {
		return nil, err
	}

	k := cfg.Param("k", 1.0)
	if _, err := sys.AddField("k", num.Scalar(k), frame.AsConstant(),
		frame.WithDescription("decay constant")); err != nil {
		return nil, err
	}

	y, err := sys.AddField("y", num.Scalar(cfg.Param("y0", 1.0)),
		frame.WithDescription("decaying quantity"),
		frame.WithConstraint(func(v num.Value) error {
			if v.Float() < 0 {
				return fmt.Errorf("y must be non-negative, got %g", v.Float())
			}
			return nil
		}))
	if err != nil {
		return nil, err
	}

	if _, err := sys.AddField("rate", num.Scalar(-k*cfg.Param("y0", 1.0)),
		frame.WithDescription("instantaneous decay rate"),
		frame.DependsOn("sys.y", "sys.k"),
		frame.WithUpdater(func(fr *frame.Frame) (num.Value, error) {
			kf, err := fr.Field("sys.k")
			if err != nil {
				return num.Value{}, err
			}
			yf, err := fr.Field("sys.y")
			if err != nil {
				return num.Value{}, err
			}
			return num.Scalar(-kf.Float() * yf.Float()), nil
		})); err != nil {
		return nil, err
	}

	deriv := func(fr *frame.Frame, x float64, y num.Value) num.Value {
		kf, _ := fr.Field("sys.k")
		return y.Scale(-kf.Float())
	}
	if err := fr.Bind(y, deriv, s); err != nil {
		return nil, err
	}
	return fr, nil
}
