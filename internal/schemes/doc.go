// Package schemes implements the pluggable integration schemes used to
// advance frame fields across one step of the independent variable.
//
// Three kinds are provided:
//
//   - explicit fixed-stage Runge-Kutta schemes driven by Butcher tableaus,
//     from 1st-order Euler up to the 4th-order 3/8 rule
//   - adaptive schemes with embedded error estimates (Heun-Euler,
//     Bogacki-Shampine, Dormand-Prince) that report an error norm and a
//     suggested step-size factor
//   - implicit backward Euler with fixed-point or Newton iteration
//
// Schemes only propose values; acceptance, retry, and commit are owned by
// the frame stepping loop.
package schemes
