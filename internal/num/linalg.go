package num

import (
	"errors"
	"math"
)

var (
	// ErrShape indicates mismatched or invalid array dimensions.
	ErrShape = errors.New("num: shape mismatch")

	// ErrSingular indicates a linear system without a unique solution.
	ErrSingular = errors.New("num: singular matrix")
)

// SolveDense solves the n-by-n system a·x = b by Gaussian elimination with
// partial pivoting. Both a and b are modified in place; the solution is
// returned in b's storage.
func SolveDense(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	if len(a) != n {
		return nil, ErrShape
	}
	for i := range a {
		if len(a[i]) != n {
			return nil, ErrShape
		}
	}

	for col := 0; col < n; col++ {
		pivot := col
		best := math.Abs(a[col][col])
		for row := col + 1; row < n; row++ {
			if abs := math.Abs(a[row][col]); abs > best {
				best = abs
				pivot = row
			}
		}
		if best == 0 {
			return nil, ErrSingular
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}

		inv := 1.0 / a[col][col]
		for row := col + 1; row < n; row++ {
			factor := a[row][col] * inv
			if factor == 0 {
				continue
			}
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * b[k]
		}
		b[row] = sum / a[row][row]
	}

	return b, nil
}
