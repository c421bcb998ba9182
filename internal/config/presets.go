package config

type preset struct {
	scheme    string
	h0        float64
	tEnd      float64
	tolerance float64
	params    map[string]float64
}

var presets = map[string]map[string]preset{
	"decay": {
		"fast":     {scheme: "euler", h0: 0.05, tEnd: 5, tolerance: 1e-4, params: map[string]float64{"k": 1}},
		"accurate": {scheme: "dopri", h0: 0.01, tEnd: 5, tolerance: 1e-9, params: map[string]float64{"k": 1}},
		"stiff":    {scheme: "impl-newton", h0: 0.1, tEnd: 5, tolerance: 1e-8, params: map[string]float64{"k": 50}},
	},
	"oscillator": {
		"fast":     {scheme: "rk4", h0: 0.05, tEnd: 20, tolerance: 1e-6, params: map[string]float64{"omega": 1}},
		"accurate": {scheme: "dopri", h0: 0.01, tEnd: 20, tolerance: 1e-10, params: map[string]float64{"omega": 1}},
	},
	"lotka": {
		"fast":     {scheme: "rk4", h0: 0.01, tEnd: 30, tolerance: 1e-6, params: map[string]float64{"alpha": 1.1, "beta": 0.4, "delta": 0.1, "gamma": 0.4}},
		"accurate": {scheme: "dopri", h0: 0.005, tEnd: 30, tolerance: 1e-9, params: map[string]float64{"alpha": 1.1, "beta": 0.4, "delta": 0.1, "gamma": 0.4}},
	},
}

// GetPreset returns a config for a named model preset, or nil when the model
// or preset does not exist.
func GetPreset(model, name string) *Config {
	group, ok := presets[model]
	if !ok {
		return nil
	}
	p, ok := group[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Model = model
	cfg.Scheme = p.scheme
	cfg.H0 = p.h0
	cfg.TEnd = p.tEnd
	cfg.Tolerance = p.tolerance
	for k, v := range p.params {
		cfg.Params[k] = v
	}
	return cfg
}

// ListPresets returns the preset names available for a model, or nil.
func ListPresets(model string) []string {
	group, ok := presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(group))
	for name := range group {
		names = append(names, name)
	}
	return names
}
