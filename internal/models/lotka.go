package models

import (
	"github.com/musicinmybrain/simframe/internal/config"
	"github.com/musicinmybrain/simframe/internal/frame"
	"github.com/musicinmybrain/simframe/internal/num"
	"github.com/musicinmybrain/simframe/internal/schemes"
)

// Lotka builds the Lotka-Volterra predator-prey system with prey and
// predator as separately bound integration variables, exercising lock-step
// multi-variable stepping. A derived total field sums both populations.
func Lotka(cfg *config.Config, s schemes.Scheme) (*frame.Frame, error) {
	fr, err := newFrame(cfg, "Lotka-Volterra predator-prey")
	if err != nil {
		return nil, err
	}
	sys, err := fr.Root().AddGroup("sys")
	if err != nil {
		return nil, err
	}

	params := map[string]float64{
		"alpha": cfg.Param("alpha", 1.1),
		"beta":  cfg.Param("beta", 0.4),
		"delta": cfg.Param("delta", 0.1),
		"gamma": cfg.Param("gamma", 0.4),
	}
	for _, name := range []string{"alpha", "beta", "delta", "gamma"} {
		if _, err := sys.AddField(name, num.Scalar(params[name]), frame.AsConstant()); err != nil {
			return nil, err
		}
	}

	prey, err := sys.AddField("prey", num.Scalar(cfg.Param("prey0", 10)),
		frame.WithDescription("prey population"))
	if err != nil {
		return nil, err
	}
	pred, err := sys.AddField("pred", num.Scalar(cfg.Param("pred0", 5)),
		frame.WithDescription("predator population"))
	if err != nil {
		return nil, err
	}

	if _, err := sys.AddField("total", num.Scalar(prey.Float()+pred.Float()),
		frame.WithDescription("combined population"),
		frame.DependsOn("sys.prey", "sys.pred"),
		frame.WithUpdater(func(fr *frame.Frame) (num.Value, error) {
			py, err := fr.Field("sys.prey")
			if err != nil {
				return num.Value{}, err
			}
			pd, err := fr.Field("sys.pred")
			if err != nil {
				return num.Value{}, err
			}
			return num.Scalar(py.Float() + pd.Float()), nil
		})); err != nil {
		return nil, err
	}

	param := func(fr *frame.Frame, name string) float64 {
		f, _ := fr.Field("sys." + name)
		return f.Float()
	}
	preyDeriv := func(fr *frame.Frame, x float64, y num.Value) num.Value {
		pd, _ := fr.Field("sys.pred")
		return num.Scalar(param(fr, "alpha")*y.Float() - param(fr, "beta")*y.Float()*pd.Float())
	}
	predDeriv := func(fr *frame.Frame, x float64, y num.Value) num.Value {
		py, _ := fr.Field("sys.prey")
		return num.Scalar(param(fr, "delta")*y.Float()*py.Float() - param(fr, "gamma")*y.Float())
	}

	if err := fr.Bind(prey, preyDeriv, s); err != nil {
		return nil, err
	}
	if err := fr.Bind(pred, predDeriv, s); err != nil {
		return nil, err
	}
	return fr, nil
}
