package frame

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/musicinmybrain/simframe/internal/num"
	"github.com/musicinmybrain/simframe/internal/schemes"
)

// memWriter collects snapshots in memory.
type memWriter struct {
	indices []int
	xs      []float64
	values  []map[string]num.Value
}

func (w *memWriter) WriteSnapshot(index int, x float64, values map[string]num.Value) error {
	w.indices = append(w.indices, index)
	w.xs = append(w.xs, x)
	w.values = append(w.values, values)
	return nil
}

// decayFrame builds a frame with sys.y decaying at rate k.
func decayFrame(t *testing.T, opts Options, y0, k float64, s schemes.Scheme) *Frame {
	t.Helper()
	fr, err := New(opts)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	g, _ := fr.Root().AddGroup("sys")
	y, err := g.AddField("y", num.Scalar(y0))
	if err != nil {
		t.Fatalf("add field: %v", err)
	}
	deriv := func(fr *Frame, x float64, y num.Value) num.Value {
		return num.Scalar(-k * y.Float())
	}
	if err := fr.Bind(y, deriv, s); err != nil {
		t.Fatalf("bind: %v", err)
	}
	return fr
}

func TestStepAdvancesIndependentVariable(t *testing.T) {
	fr := decayFrame(t, Options{}, 1, 1, schemes.RK4())
	h, err := fr.Step(0.25)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if h != 0.25 {
		t.Errorf("accepted h = %f, want 0.25", h)
	}
	if fr.X() != 0.25 {
		t.Errorf("x = %f, want 0.25", fr.X())
	}
	if fr.Steps() != 1 {
		t.Errorf("steps = %d, want 1", fr.Steps())
	}
	if fr.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle", fr.Phase())
	}
}

func TestDecayAccuracy(t *testing.T) {
	fr := decayFrame(t, Options{}, 1, 1, schemes.RK4())
	for fr.X() < 1-1e-12 {
		if _, err := fr.Step(0.01); err != nil {
			t.Fatalf("step at x=%f: %v", fr.X(), err)
		}
	}
	y, _ := fr.Field("sys.y")
	exact := math.Exp(-1)
	if diff := math.Abs(y.Float() - exact); diff > 1e-9 {
		t.Errorf("y(1) = %v, want %v (diff %e)", y.Float(), exact, diff)
	}
}

func TestAdaptiveRetryWithinStep(t *testing.T) {
	// A deliberately huge first step forces rejections; the frame must
	// shrink the shared step and still land an accepted one.
	s := schemes.DormandPrince(schemes.Controller{Atol: 1e-10, Rtol: 1e-8})
	fr := decayFrame(t, Options{MaxRetries: 50}, 1, 5, s)
	h, err := fr.Step(10)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if h >= 10 {
		t.Errorf("accepted h = %f, expected a shrunken step", h)
	}
	if fr.X() != h {
		t.Errorf("x = %f, want accepted h %f", fr.X(), h)
	}
	if fr.NextStep() <= 0 {
		t.Errorf("warm-started step not set: %f", fr.NextStep())
	}
}

func TestMaxRetriesLeavesStateUntouched(t *testing.T) {
	s := schemes.DormandPrince(schemes.Controller{Atol: 1e-14, Rtol: 1e-14})
	fr := decayFrame(t, Options{MaxRetries: 1}, 1, 5, s)
	_, err := fr.Step(100)
	if !errors.Is(err, ErrMaxRetries) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if fr.X() != 0 {
		t.Errorf("failed step moved x to %f", fr.X())
	}
	y, _ := fr.Field("sys.y")
	if y.Float() != 1 {
		t.Errorf("failed step changed y to %f", y.Float())
	}
	if fr.Phase() != PhaseIdle {
		t.Errorf("phase = %v after failure, want idle", fr.Phase())
	}
}

func TestMinStepFatal(t *testing.T) {
	s := schemes.DormandPrince(schemes.Controller{Atol: 1e-14, Rtol: 1e-14})
	fr := decayFrame(t, Options{MinStep: 1, MaxRetries: 100}, 1, 5, s)
	_, err := fr.Step(2)
	if !errors.Is(err, ErrStepTooSmall) {
		t.Fatalf("expected ErrStepTooSmall, got %v", err)
	}
}

func TestLockStepCommit(t *testing.T) {
	// Two bound variables advance under the same accepted step.
	fr, err := New(Options{})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	g, _ := fr.Root().AddGroup("sys")
	a, _ := g.AddField("a", num.Scalar(1))
	b, _ := g.AddField("b", num.Scalar(2))
	fr.Bind(a, func(fr *Frame, x float64, y num.Value) num.Value {
		return num.Scalar(-y.Float())
	}, schemes.RK4())
	fr.Bind(b, func(fr *Frame, x float64, y num.Value) num.Value {
		return num.Scalar(-2 * y.Float())
	}, schemes.RK4())

	for fr.X() < 1-1e-12 {
		if _, err := fr.Step(0.01); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if diff := math.Abs(a.Float() - math.Exp(-1)); diff > 1e-8 {
		t.Errorf("a(1) off by %e", diff)
	}
	if diff := math.Abs(b.Float() - 2*math.Exp(-2)); diff > 1e-8 {
		t.Errorf("b(1) off by %e", diff)
	}
}

func TestAllOrNothingOnSchemeFailure(t *testing.T) {
	// The second binding's fixed-point iteration diverges (h*k = 2), so the
	// first binding's healthy proposal must not be committed either.
	fr, err := New(Options{})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	g, _ := fr.Root().AddGroup("sys")
	a, _ := g.AddField("a", num.Scalar(1))
	b, _ := g.AddField("b", num.Scalar(1))
	fr.Bind(a, func(fr *Frame, x float64, y num.Value) num.Value {
		return num.Scalar(-y.Float())
	}, schemes.Euler())
	fr.Bind(b, func(fr *Frame, x float64, y num.Value) num.Value {
		return num.Scalar(-20 * y.Float())
	}, schemes.FixedPointEuler(1e-10, 20))

	_, err = fr.Step(0.1)
	if !errors.Is(err, schemes.ErrNoConvergence) {
		t.Fatalf("expected ErrNoConvergence, got %v", err)
	}
	var se *StepError
	if !errors.As(err, &se) || se.Field != "sys.b" {
		t.Errorf("error should name sys.b, got %v", err)
	}
	if a.Float() != 1 || b.Float() != 1 || fr.X() != 0 {
		t.Errorf("partial commit: a=%f b=%f x=%f", a.Float(), b.Float(), fr.X())
	}
}

func TestConstraintBlocksCommit(t *testing.T) {
	fr, err := New(Options{})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	g, _ := fr.Root().AddGroup("sys")
	y, _ := g.AddField("y", num.Scalar(0.1), WithConstraint(func(v num.Value) error {
		if v.Float() < 0 {
			return fmt.Errorf("negative")
		}
		return nil
	}))
	other, _ := g.AddField("other", num.Scalar(1))
	// One big explicit Euler step overshoots zero.
	fr.Bind(y, func(fr *Frame, x float64, v num.Value) num.Value {
		return num.Scalar(-10 * v.Float())
	}, schemes.Euler())
	fr.Bind(other, func(fr *Frame, x float64, v num.Value) num.Value {
		return num.Scalar(1)
	}, schemes.Euler())

	_, err = fr.Step(1)
	if err == nil {
		t.Fatal("expected constraint failure")
	}
	if y.Float() != 0.1 || other.Float() != 1 || fr.X() != 0 {
		t.Errorf("partial commit: y=%f other=%f x=%f", y.Float(), other.Float(), fr.X())
	}
}

func TestStepRejectsReentry(t *testing.T) {
	fr, err := New(Options{})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	g, _ := fr.Root().AddGroup("sys")
	var reentry error
	y, _ := g.AddField("y", num.Scalar(1))
	g.AddField("probe", num.Scalar(0), WithUpdater(func(fr *Frame) (num.Value, error) {
		_, reentry = fr.Step(0.1)
		return num.Scalar(0), nil
	}))
	fr.Bind(y, func(fr *Frame, x float64, v num.Value) num.Value {
		return num.Scalar(-v.Float())
	}, schemes.Euler())

	if _, err := fr.Step(0.1); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !errors.Is(reentry, ErrBusy) {
		t.Errorf("nested Step should return ErrBusy, got %v", reentry)
	}
}

func TestSnapshotEvery(t *testing.T) {
	w := &memWriter{}
	fr := decayFrame(t, Options{SnapshotEvery: 3}, 1, 1, schemes.RK4())
	fr.SetWriter(w)
	for i := 0; i < 7; i++ {
		if _, err := fr.Step(0.1); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if len(w.indices) != 2 {
		t.Fatalf("expected 2 snapshots after 7 steps, got %d", len(w.indices))
	}
	if w.indices[0] != 0 || w.indices[1] != 1 {
		t.Errorf("snapshot indices %v, want 0,1", w.indices)
	}
}

func TestRunSnapshotTargets(t *testing.T) {
	targets := []float64{0.3, 0.7, 1.0}
	w := &memWriter{}
	fr := decayFrame(t, Options{Snapshots: targets}, 1, 1, schemes.RK4())
	fr.SetWriter(w)

	if err := fr.Run(context.Background(), 0.1, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Initial state plus one snapshot per target.
	if len(w.xs) != len(targets)+1 {
		t.Fatalf("got %d snapshots, want %d", len(w.xs), len(targets)+1)
	}
	if w.xs[0] != 0 {
		t.Errorf("first snapshot at x=%f, want initial state", w.xs[0])
	}
	for i, target := range targets {
		if math.Abs(w.xs[i+1]-target) > 1e-12 {
			t.Errorf("snapshot %d at x=%v, want exactly %v", i+1, w.xs[i+1], target)
		}
	}
	if math.Abs(fr.X()-1.0) > 1e-12 {
		t.Errorf("final x = %v, want 1", fr.X())
	}
	y := w.values[len(w.values)-1]["sys.y"]
	if diff := math.Abs(y.Float() - math.Exp(-1)); diff > 1e-6 {
		t.Errorf("final snapshot y off by %e", diff)
	}
}

func TestRunStopCondition(t *testing.T) {
	fr := decayFrame(t, Options{}, 1, 1, schemes.RK4())
	err := fr.Run(context.Background(), 0.05, func(fr *Frame) bool {
		return fr.X() >= 0.5
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if fr.X() < 0.5 {
		t.Errorf("stopped early at x=%f", fr.X())
	}
}

func TestRunContextCancel(t *testing.T) {
	fr := decayFrame(t, Options{}, 1, 1, schemes.RK4())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fr.Run(ctx, 0.05, func(fr *Frame) bool { return false })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBindValidation(t *testing.T) {
	fr, err := New(Options{})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	g, _ := fr.Root().AddGroup("sys")
	y, _ := g.AddField("y", num.Scalar(1))

	badShape := func(fr *Frame, x float64, v num.Value) num.Value {
		return num.Vector(1, 2)
	}
	if err := fr.Bind(y, badShape, schemes.Euler()); !errors.Is(err, ErrBadBinding) {
		t.Errorf("shape-mismatched derivative accepted: %v", err)
	}
	ok := func(fr *Frame, x float64, v num.Value) num.Value {
		return num.Scalar(0)
	}
	if err := fr.BindFraction(y, ok, schemes.Euler(), 1.5); !errors.Is(err, ErrBadBinding) {
		t.Errorf("fraction 1.5 accepted: %v", err)
	}
	if err := fr.Bind(y, nil, schemes.Euler()); !errors.Is(err, ErrBadBinding) {
		t.Errorf("nil derivative accepted: %v", err)
	}
	k, _ := g.AddField("k", num.Scalar(1), AsConstant())
	if err := fr.Bind(k, ok, schemes.Euler()); !errors.Is(err, ErrBadBinding) {
		t.Errorf("constant field bound: %v", err)
	}
}

func TestSnapshotTargetsMustIncrease(t *testing.T) {
	if _, err := New(Options{Snapshots: []float64{1, 1}}); err == nil {
		t.Error("equal targets accepted")
	}
	if _, err := New(Options{Snapshots: []float64{2, 1}}); err == nil {
		t.Error("decreasing targets accepted")
	}
}

type countObserver struct {
	steps int
}

func (o *countObserver) OnStep(x, h float64, retries int) { o.steps++ }

func TestObserverNotified(t *testing.T) {
	fr := decayFrame(t, Options{}, 1, 1, schemes.RK4())
	obs := &countObserver{}
	fr.AddObserver(obs)
	for i := 0; i < 4; i++ {
		if _, err := fr.Step(0.1); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if obs.steps != 4 {
		t.Errorf("observer saw %d steps, want 4", obs.steps)
	}
}
