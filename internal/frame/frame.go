package frame

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/musicinmybrain/simframe/internal/num"
	"github.com/musicinmybrain/simframe/internal/schemes"
)

// Phase is the stepping loop's state machine position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUpdatingPre
	PhaseIntegrating
	PhaseCommitting
	PhaseUpdatingPost
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUpdatingPre:
		return "updating-pre"
	case PhaseIntegrating:
		return "integrating"
	case PhaseCommitting:
		return "committing"
	case PhaseUpdatingPost:
		return "updating-post"
	default:
		return "unknown"
	}
}

// DerivFunc produces the derivative of a bound field with the live frame as
// context. The returned value must match the bound field's shape.
type DerivFunc func(fr *Frame, x float64, y num.Value) num.Value

// Instruction binds one integration variable to its scheme. Frac scales the
// shared step size for this binding, for operator-splitting setups; it is 1
// for ordinary bindings.
type Instruction struct {
	field  nodeID
	scheme schemes.Scheme
	deriv  DerivFunc
	frac   float64
}

// SnapshotWriter receives state dumps keyed by dotted path at the points
// chosen by the frame's snapshot policy.
type SnapshotWriter interface {
	WriteSnapshot(index int, x float64, values map[string]num.Value) error
}

// Observer receives integration-progress events.
type Observer interface {
	OnStep(x, h float64, retries int)
}

// Options configures a frame at construction. The zero value is usable:
// independent variable "t" starting at 0, no step bounds, snapshotting off.
type Options struct {
	Description    string
	IndependentVar string  // name of the independent-variable field
	X0             float64 // initial value of the independent variable
	MinStep        float64 // fatal if the shared step shrinks below this; 0 disables
	MaxStep        float64 // cap on the shared step; 0 disables
	MaxRetries     int     // adaptive rejection retries per step; default 10
	SnapshotEvery  int     // emit a snapshot every N accepted steps; 0 disables
	Snapshots      []float64
}

// Frame is the root of the state tree. It owns the independent variable, the
// instruction set, and the stepping loop. Frames are not safe for concurrent
// use; callers must not mutate fields while a Step call is in progress.
type Frame struct {
	nodes []node
	root  nodeID
	xID   nodeID
	opts  Options

	instructions []Instruction
	observers    []Observer
	writer       SnapshotWriter
	orderCache   map[nodeID][]nodeID

	phase     Phase
	steps     int
	snapIndex int
	hNext     float64
}

// New constructs an empty frame holding only the independent variable.
func New(opts Options) (*Frame, error) {
	if opts.IndependentVar == "" {
		opts.IndependentVar = "t"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}
	for i := 1; i < len(opts.Snapshots); i++ {
		if opts.Snapshots[i] <= opts.Snapshots[i-1] {
			return nil, fmt.Errorf("frame: snapshot targets must be strictly increasing")
		}
	}

	fr := &Frame{opts: opts, root: 0}
	fr.nodes = append(fr.nodes, node{kind: kindGroup, parent: invalidID, desc: opts.Description})

	x, err := fr.Root().AddField(opts.IndependentVar, num.Scalar(opts.X0),
		AsSticky(), WithDescription("independent variable"))
	if err != nil {
		return nil, err
	}
	fr.xID = x.id
	return fr, nil
}

// Root returns the root group.
func (fr *Frame) Root() Group { return Group{fr: fr, id: fr.root} }

// IndependentVar returns the independent-variable field.
func (fr *Frame) IndependentVar() Field { return Field{fr: fr, id: fr.xID} }

// X returns the current value of the independent variable.
func (fr *Frame) X() float64 { return fr.node(fr.xID).value.Float() }

// Phase returns the stepping loop's current state.
func (fr *Frame) Phase() Phase { return fr.phase }

// Steps returns the number of accepted steps so far.
func (fr *Frame) Steps() int { return fr.steps }

// NextStep returns the warm-started step size the frame would use next.
func (fr *Frame) NextStep() float64 { return fr.hNext }

// Field resolves a field by dotted path from the root.
func (fr *Frame) Field(path string) (Field, error) { return fr.Root().Field(path) }

// Group resolves a group by dotted path from the root.
func (fr *Frame) Group(path string) (Group, error) { return fr.Root().Group(path) }

// Update runs one dependency-ordered update pass over the whole tree.
func (fr *Frame) Update() error { return fr.updateGroup(fr.root) }

// SetWriter installs the snapshot collaborator.
func (fr *Frame) SetWriter(w SnapshotWriter) { fr.writer = w }

// AddObserver registers a progress observer.
func (fr *Frame) AddObserver(o Observer) { fr.observers = append(fr.observers, o) }

// Bind adds an instruction integrating the field with the given scheme. The
// derivative is probed once to verify it matches the field's shape.
func (fr *Frame) Bind(f Field, deriv DerivFunc, s schemes.Scheme) error {
	return fr.BindFraction(f, deriv, s, 1)
}

// BindFraction is Bind with a step-size fraction for operator splitting.
func (fr *Frame) BindFraction(f Field, deriv DerivFunc, s schemes.Scheme, frac float64) error {
	if f.fr != fr || fr.node(f.id).kind != kindField {
		return fmt.Errorf("%w: not a field of this frame", ErrBadBinding)
	}
	if fr.node(f.id).constant {
		return fmt.Errorf("%w: %q is constant", ErrBadBinding, f.Path())
	}
	if deriv == nil || s == nil {
		return fmt.Errorf("%w: %q needs a derivative and a scheme", ErrBadBinding, f.Path())
	}
	if frac <= 0 || frac > 1 {
		return fmt.Errorf("%w: step fraction %g outside (0, 1]", ErrBadBinding, frac)
	}
	y := fr.node(f.id).value
	if probe := deriv(fr, fr.X(), y.Clone()); !probe.SameShape(y) {
		return fmt.Errorf("%w: derivative of %q has shape %v, field has %v",
			ErrBadBinding, f.Path(), probe.Shape(), y.Shape())
	}
	fr.instructions = append(fr.instructions, Instruction{field: f.id, scheme: s, deriv: deriv, frac: frac})
	return nil
}

// Snapshot returns a copy of every field's value keyed by dotted path.
func (fr *Frame) Snapshot() map[string]num.Value {
	var fields []nodeID
	fr.collectFields(fr.root, &fields)
	out := make(map[string]num.Value, len(fields))
	for _, id := range fields {
		out[fr.path(id)] = fr.node(id).value.Clone()
	}
	return out
}

// WriteOutput emits one snapshot to the writer, if one is installed.
func (fr *Frame) WriteOutput() error {
	if fr.writer == nil {
		return nil
	}
	if err := fr.writer.WriteSnapshot(fr.snapIndex, fr.X(), fr.Snapshot()); err != nil {
		return err
	}
	for _, o := range fr.observers {
		if so, ok := o.(interface{ OnSnapshot(index int, x float64) }); ok {
			so.OnSnapshot(fr.snapIndex, fr.X())
		}
	}
	fr.snapIndex++
	return nil
}

func (fr *Frame) clampStep(h float64) float64 {
	if fr.opts.MaxStep > 0 && h > fr.opts.MaxStep {
		h = fr.opts.MaxStep
	}
	return h
}

// Step advances the frame by one step of at most h. It runs the pre-step
// update pass, proposes new values for every instruction on a shared step
// size (shrinking and retrying on adaptive rejection), commits all proposals
// atomically, advances the independent variable, and runs the post-step
// update pass. On any fatal failure no bound value and no independent
// variable changes. It returns the accepted step size.
func (fr *Frame) Step(h float64) (float64, error) {
	if fr.phase != PhaseIdle {
		return 0, ErrBusy
	}
	if h <= 0 {
		return 0, fmt.Errorf("frame: step size must be positive, got %g", h)
	}
	if len(fr.instructions) == 0 {
		return 0, fmt.Errorf("%w: no integration bindings", ErrBadBinding)
	}
	defer func() { fr.phase = PhaseIdle }()

	fr.phase = PhaseUpdatingPre
	if err := fr.Update(); err != nil {
		return 0, err
	}

	fr.phase = PhaseIntegrating
	x := fr.X()
	h = fr.clampStep(h)
	proposals := make([]num.Value, len(fr.instructions))
	growth := math.Inf(1)
	retries := 0

	for {
		reject := false
		shrink := 1.0
		growth = math.Inf(1)

		for i, inst := range fr.instructions {
			y := fr.node(inst.field).value
			p, err := inst.scheme.Propose(fr.bindDeriv(inst.deriv), x, y, h*inst.frac)
			if err != nil {
				return 0, &StepError{
					Field:   fr.path(inst.field),
					Scheme:  inst.scheme.Name(),
					X:       x,
					H:       h,
					Wrapped: err,
				}
			}
			if !p.Accepted() {
				reject = true
				shrink = math.Min(shrink, p.Factor)
			}
			growth = math.Min(growth, p.Factor)
			proposals[i] = p.Value
		}

		if !reject {
			break
		}
		retries++
		if retries > fr.opts.MaxRetries {
			return 0, &StepError{X: x, H: h, Wrapped: ErrMaxRetries}
		}
		h *= shrink
		if fr.opts.MinStep > 0 && h < fr.opts.MinStep {
			return 0, &StepError{X: x, H: h, Wrapped: ErrStepTooSmall}
		}
	}

	fr.phase = PhaseCommitting
	// Validate every proposal before writing anything, so a constraint
	// violation cannot leave a partial commit.
	for i, inst := range fr.instructions {
		n := fr.node(inst.field)
		if !n.value.SameShape(proposals[i]) {
			return 0, &StepError{
				Field:   fr.path(inst.field),
				Scheme:  inst.scheme.Name(),
				X:       x,
				H:       h,
				Wrapped: fmt.Errorf("%w: proposal shape %v", ErrShapeMismatch, proposals[i].Shape()),
			}
		}
		if n.constraint != nil {
			if err := n.constraint(proposals[i]); err != nil {
				return 0, &StepError{
					Field:   fr.path(inst.field),
					Scheme:  inst.scheme.Name(),
					X:       x,
					H:       h,
					Wrapped: err,
				}
			}
		}
	}
	for i, inst := range fr.instructions {
		fr.node(inst.field).value.CopyFrom(proposals[i])
	}
	fr.node(fr.xID).value.CopyFrom(num.Scalar(x + h))

	fr.phase = PhaseUpdatingPost
	fr.steps++
	if math.IsInf(growth, 1) {
		growth = 1
	}
	fr.hNext = fr.clampStep(h * growth)

	if err := fr.Update(); err != nil {
		return h, err
	}

	if fr.opts.SnapshotEvery > 0 && fr.steps%fr.opts.SnapshotEvery == 0 {
		if err := fr.WriteOutput(); err != nil {
			return h, err
		}
	}
	for _, o := range fr.observers {
		o.OnStep(fr.X(), h, retries)
	}
	return h, nil
}

// Run steps repeatedly until the stop condition holds, a fatal failure
// occurs, or the context is cancelled between steps. When snapshot targets
// are configured, each leg's final step is clamped so the independent
// variable lands exactly on the target, where a snapshot is emitted; the
// initial state is written as snapshot zero.
func (fr *Frame) Run(ctx context.Context, h0 float64, stop func(*Frame) bool) error {
	if h0 <= 0 {
		return fmt.Errorf("frame: initial step size must be positive, got %g", h0)
	}
	if stop == nil && len(fr.opts.Snapshots) == 0 {
		return errors.New("frame: run needs a stop condition or snapshot targets")
	}
	fr.hNext = fr.clampStep(h0)

	if len(fr.opts.Snapshots) == 0 {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := fr.Step(fr.hNext); err != nil {
				return err
			}
			if stop(fr) {
				return nil
			}
		}
	}

	if fr.X() <= fr.opts.Snapshots[0] {
		if err := fr.WriteOutput(); err != nil {
			return err
		}
	}
	for _, target := range fr.opts.Snapshots {
		for fr.X() < target {
			if err := ctx.Err(); err != nil {
				return err
			}
			h := math.Min(fr.hNext, target-fr.X())
			if _, err := fr.Step(h); err != nil {
				return err
			}
			if stop != nil && stop(fr) {
				return nil
			}
		}
		if err := fr.WriteOutput(); err != nil {
			return err
		}
	}
	return nil
}

func (fr *Frame) bindDeriv(d DerivFunc) schemes.Derivative {
	return func(x float64, y num.Value) num.Value {
		return d(fr, x, y)
	}
}
