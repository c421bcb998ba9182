package num

import (
	"errors"
	"math"
	"testing"
)

func TestSolveDense(t *testing.T) {
	a := [][]float64{
		{2, 1, -1},
		{-3, -1, 2},
		{-2, 1, 2},
	}
	b := []float64{8, -11, -3}

	x, err := SolveDense(a, b)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	want := []float64{2, 3, -1}
	for i := range want {
		if math.Abs(x[i]-want[i]) > 1e-12 {
			t.Errorf("x[%d] = %f, want %f", i, x[i], want[i])
		}
	}
}

func TestSolveDenseNeedsPivoting(t *testing.T) {
	// Zero on the initial pivot forces a row swap.
	a := [][]float64{
		{0, 1},
		{1, 0},
	}
	b := []float64{2, 3}
	x, err := SolveDense(a, b)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if x[0] != 3 || x[1] != 2 {
		t.Errorf("got %v, want [3 2]", x)
	}
}

func TestSolveDenseSingular(t *testing.T) {
	a := [][]float64{
		{1, 2},
		{2, 4},
	}
	b := []float64{1, 2}
	if _, err := SolveDense(a, b); !errors.Is(err, ErrSingular) {
		t.Errorf("expected ErrSingular, got %v", err)
	}
}

func TestSolveDenseShape(t *testing.T) {
	if _, err := SolveDense([][]float64{{1}}, []float64{1, 2}); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}
