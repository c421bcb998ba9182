package models

import (
	"github.com/musicinmybrain/simframe/internal/config"
	"github.com/musicinmybrain/simframe/internal/frame"
	"github.com/musicinmybrain/simframe/internal/num"
	"github.com/musicinmybrain/simframe/internal/schemes"
)

// Oscillator builds a harmonic oscillator with state [position, velocity]
// and a derived energy field that recomputes after every step.
func Oscillator(cfg *config.Config, s schemes.Scheme) (*frame.Frame, error) {
	fr, err := newFrame(cfg, "harmonic oscillator")
	if err != nil {
		return nil, err
	}
	sys, err := fr.Root().AddGroup("sys")
	if err != nil {
		return nil, err
	}

	omega := cfg.Param("omega", 1.0)
	x0 := cfg.Param("x0", 1.0)
	v0 := cfg.Param("v0", 0.0)

	if _, err := sys.AddField("omega", num.Scalar(omega), frame.AsConstant(),
		frame.WithDescription("angular frequency")); err != nil {
		return nil, err
	}

	state, err := sys.AddField("state", num.Vector(x0, v0),
		frame.WithDescription("position and velocity"))
	if err != nil {
		return nil, err
	}

	energy := func(w float64, st num.Value) float64 {
		pos, vel := st.At(0), st.At(1)
		return 0.5 * (vel*vel + w*w*pos*pos)
	}
	if _, err := sys.AddField("energy", num.Scalar(energy(omega, state.Value())),
		frame.WithDescription("total mechanical energy"),
		frame.DependsOn("sys.state"),
		frame.WithUpdater(func(fr *frame.Frame) (num.Value, error) {
			wf, err := fr.Field("sys.omega")
			if err != nil {
				return num.Value{}, err
			}
			sf, err := fr.Field("sys.state")
			if err != nil {
				return num.Value{}, err
			}
			return num.Scalar(energy(wf.Float(), sf.Value())), nil
		})); err != nil {
		return nil, err
	}

	deriv := func(fr *frame.Frame, x float64, y num.Value) num.Value {
		wf, _ := fr.Field("sys.omega")
		w := wf.Float()
		return num.Vector(y.At(1), -w*w*y.At(0))
	}
	if err := fr.Bind(state, deriv, s); err != nil {
		return nil, err
	}
	return fr, nil
}
