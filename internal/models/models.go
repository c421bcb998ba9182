// Package models provides the built-in example systems the CLI can run.
// Each builder assembles a frame tree, declares derived fields, and binds
// the integration variables to the chosen scheme.
package models

import (
	"fmt"
	"sort"

	"github.com/musicinmybrain/simframe/internal/config"
	"github.com/musicinmybrain/simframe/internal/frame"
	"github.com/musicinmybrain/simframe/internal/schemes"
)

// BuildFunc assembles a ready-to-run frame for one model.
type BuildFunc func(cfg *config.Config, s schemes.Scheme) (*frame.Frame, error)

var registry = map[string]BuildFunc{
	"decay":      Decay,
	"oscillator": Oscillator,
	"lotka":      Lotka,
}

// Build assembles the named model.
func Build(name string, cfg *config.Config, s schemes.Scheme) (*frame.Frame, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("models: unknown model %q", name)
	}
	return fn(cfg, s)
}

// Names lists the registered model names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFrame(cfg *config.Config, desc string) (*frame.Frame, error) {
	return frame.New(frame.Options{
		Description:   desc,
		X0:            cfg.T0,
		MinStep:       cfg.MinStep,
		MaxStep:       cfg.MaxStep,
		MaxRetries:    cfg.MaxRetries,
		SnapshotEvery: cfg.SnapshotEvery,
		Snapshots:     cfg.Snapshots,
	})
}
