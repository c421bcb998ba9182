// Package frame holds hierarchical, named numerical state and advances it
// in an independent variable using pluggable integration schemes.
//
// The state tree is an arena of nodes addressed by stable handles:
//
//   - [Field]: a named scalar or array value with an optional updater,
//     optional constraint, and a sticky flag
//   - [Group]: an ordered, named collection of fields and nested groups
//   - [Frame]: the root group, owning the independent variable, the
//     instruction set, and the stepping loop
//
// Fields declare dependencies on other fields by dotted path; update passes
// execute fields in a stable topological order of that graph, with cycles
// reported as configuration errors before anything runs.
//
// # Example
//
//	fr, _ := frame.New(frame.Options{})
//	sys, _ := fr.Root().AddGroup("sys")
//	y, _ := sys.AddField("y", num.Scalar(1))
//	fr.Bind(y, decayDeriv, schemes.RK4())
//	fr.Run(ctx, 0.01, func(fr *frame.Frame) bool { return fr.X() >= 1 })
//
// # Thread safety
//
// Frames are not thread-safe. The tree is mutated only by the stepping loop
// and by explicit assignment between steps; callers must not touch fields
// while Step is in progress.
package frame
