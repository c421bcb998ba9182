// Package num is the numeric backend for the framework: a scalar-or-array
// Value with shape introspection, elementwise arithmetic, reduction norms,
// and a small dense linear solver used by implicit integration schemes.
package num
