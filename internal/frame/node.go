package frame

import (
	"fmt"
	"strings"

	"github.com/musicinmybrain/simframe/internal/num"
)

// nodeID is a stable handle into the frame's node arena. Parent and child
// relations are stored as handle links rather than pointers, so the tree has
// no circular references.
type nodeID int32

const invalidID nodeID = -1

type nodeKind uint8

const (
	kindGroup nodeKind = iota
	kindField
)

// UpdateFunc recomputes a field's value from the live frame. It must return
// a value matching the field's shape.
type UpdateFunc func(fr *Frame) (num.Value, error)

// GroupUpdateFunc runs after all members of a group have updated.
type GroupUpdateFunc func(fr *Frame) error

// Constraint validates a value before it is written to a field.
type Constraint func(v num.Value) error

type node struct {
	kind    nodeKind
	name    string
	desc    string
	parent  nodeID
	removed bool

	// group members, in declaration order
	children []nodeID
	grpUpd   GroupUpdateFunc

	// field state
	value      num.Value
	updater    UpdateFunc
	constraint Constraint
	sticky     bool
	constant   bool
	deps       []string
	before     []string
	after      []string
}

// Field is a lightweight handle to a named numeric value in the tree.
type Field struct {
	fr *Frame
	id nodeID
}

// Group is a lightweight handle to an ordered collection of fields and
// nested groups.
type Group struct {
	fr *Frame
	id nodeID
}

// FieldOption configures a field at creation time.
type FieldOption func(*node)

// WithUpdater sets the function that recomputes the field during update
// passes.
func WithUpdater(fn UpdateFunc) FieldOption {
	return func(n *node) { n.updater = fn }
}

// WithConstraint sets a validator that runs on every write to the field,
// including the initial value and integration commits.
func WithConstraint(c Constraint) FieldOption {
	return func(n *node) { n.constraint = c }
}

// AsSticky excludes the field from automatic update passes; it is only
// changed by direct assignment.
func AsSticky() FieldOption {
	return func(n *node) { n.sticky = true }
}

// AsConstant freezes the field at its initial value. Constant fields reject
// every later write and are excluded from update passes.
func AsConstant() FieldOption {
	return func(n *node) { n.constant, n.sticky = true, true }
}

// WithDescription attaches a descriptive string.
func WithDescription(desc string) FieldOption {
	return func(n *node) { n.desc = desc }
}

// DependsOn declares data dependencies by dotted path. The field is
// recomputed strictly after every field it depends on.
func DependsOn(paths ...string) FieldOption {
	return func(n *node) { n.deps = append(n.deps, paths...) }
}

// UpdateAfter adds an ordering hint without declaring a data dependency.
func UpdateAfter(paths ...string) FieldOption {
	return func(n *node) { n.after = append(n.after, paths...) }
}

// UpdateBefore adds an ordering hint without declaring a data dependency.
func UpdateBefore(paths ...string) FieldOption {
	return func(n *node) { n.before = append(n.before, paths...) }
}

// GroupOption configures a group at creation time.
type GroupOption func(*node)

// WithGroupUpdater sets a function that runs after the group's members have
// been updated.
func WithGroupUpdater(fn GroupUpdateFunc) GroupOption {
	return func(n *node) { n.grpUpd = fn }
}

// WithGroupDescription attaches a descriptive string.
func WithGroupDescription(desc string) GroupOption {
	return func(n *node) { n.desc = desc }
}

func (fr *Frame) node(id nodeID) *node { return &fr.nodes[id] }

func (fr *Frame) path(id nodeID) string {
	if id == fr.root {
		return ""
	}
	var parts []string
	for id != fr.root && id != invalidID {
		parts = append(parts, fr.nodes[id].name)
		id = fr.nodes[id].parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// resolve walks a dotted path from the given group node.
func (fr *Frame) resolve(from nodeID, path string) (nodeID, error) {
	id := from
	if path == "" {
		return id, nil
	}
	for _, part := range strings.Split(path, ".") {
		n := fr.node(id)
		if n.kind != kindGroup {
			return invalidID, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		next := invalidID
		for _, child := range n.children {
			if fr.nodes[child].name == part {
				next = child
				break
			}
		}
		if next == invalidID {
			return invalidID, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		id = next
	}
	return id, nil
}

func (fr *Frame) addChild(parent nodeID, n node) (nodeID, error) {
	p := fr.node(parent)
	for _, child := range p.children {
		if fr.nodes[child].name == n.name {
			return invalidID, fmt.Errorf("%w: %q in %q", ErrDuplicateName, n.name, fr.path(parent))
		}
	}
	n.parent = parent
	id := nodeID(len(fr.nodes))
	fr.nodes = append(fr.nodes, n)
	fr.node(parent).children = append(fr.node(parent).children, id)
	fr.invalidateOrder()
	return id, nil
}

// setFieldValue writes v into the field, enforcing the shape established at
// creation and running the field's constraint.
func (fr *Frame) setFieldValue(id nodeID, v num.Value) error {
	n := fr.node(id)
	if n.removed {
		return fmt.Errorf("%w: %q was removed", ErrNotFound, n.name)
	}
	if n.constant {
		return fmt.Errorf("%w: %q", ErrConstant, fr.path(id))
	}
	if !v.Defined() {
		return fmt.Errorf("%w: undefined value for %q", ErrShapeMismatch, fr.path(id))
	}
	if !n.value.SameShape(v) {
		return fmt.Errorf("%w: %q has shape %v, got %v", ErrShapeMismatch, fr.path(id), n.value.Shape(), v.Shape())
	}
	if n.constraint != nil {
		if err := n.constraint(v); err != nil {
			return fmt.Errorf("constraint on %q: %w", fr.path(id), err)
		}
	}
	n.value.CopyFrom(v)
	return nil
}

// Name returns the group's name; empty for the root group.
func (g Group) Name() string { return g.fr.node(g.id).name }

// Path returns the group's dotted path from the root; empty for the root.
func (g Group) Path() string { return g.fr.path(g.id) }

// Description returns the group's descriptive string.
func (g Group) Description() string { return g.fr.node(g.id).desc }

// AddGroup adds a nested group.
func (g Group) AddGroup(name string, opts ...GroupOption) (Group, error) {
	if name == "" || strings.Contains(name, ".") {
		return Group{}, fmt.Errorf("frame: invalid group name %q", name)
	}
	n := node{kind: kindGroup, name: name}
	for _, opt := range opts {
		opt(&n)
	}
	id, err := g.fr.addChild(g.id, n)
	if err != nil {
		return Group{}, err
	}
	return Group{fr: g.fr, id: id}, nil
}

// AddField adds a field with an initial value. The value fixes the field's
// shape; later writes must match it.
func (g Group) AddField(name string, v num.Value, opts ...FieldOption) (Field, error) {
	if name == "" || strings.Contains(name, ".") {
		return Field{}, fmt.Errorf("frame: invalid field name %q", name)
	}
	if !v.Defined() {
		return Field{}, fmt.Errorf("frame: field %q needs an initial value", name)
	}
	n := node{kind: kindField, name: name, value: v.Clone()}
	for _, opt := range opts {
		opt(&n)
	}
	if n.constraint != nil {
		if err := n.constraint(n.value); err != nil {
			return Field{}, fmt.Errorf("constraint on %q: %w", name, err)
		}
	}
	id, err := g.fr.addChild(g.id, n)
	if err != nil {
		return Field{}, err
	}
	return Field{fr: g.fr, id: id}, nil
}

// Remove detaches a direct child (and its subtree). Handles to removed nodes
// become stale.
func (g Group) Remove(name string) error {
	n := g.fr.node(g.id)
	for i, child := range n.children {
		if g.fr.nodes[child].name == name {
			n.children = append(n.children[:i], n.children[i+1:]...)
			g.fr.markRemoved(child)
			g.fr.invalidateOrder()
			return nil
		}
	}
	return fmt.Errorf("%w: %q in %q", ErrNotFound, name, g.Path())
}

func (fr *Frame) markRemoved(id nodeID) {
	n := fr.node(id)
	n.removed = true
	for _, child := range n.children {
		fr.markRemoved(child)
	}
}

// Field resolves a field by path relative to this group.
func (g Group) Field(path string) (Field, error) {
	id, err := g.fr.resolve(g.id, path)
	if err != nil {
		return Field{}, err
	}
	if g.fr.node(id).kind != kindField {
		return Field{}, fmt.Errorf("%w: %q is a group", ErrNotFound, path)
	}
	return Field{fr: g.fr, id: id}, nil
}

// Group resolves a nested group by path relative to this group.
func (g Group) Group(path string) (Group, error) {
	id, err := g.fr.resolve(g.id, path)
	if err != nil {
		return Group{}, err
	}
	if g.fr.node(id).kind != kindGroup {
		return Group{}, fmt.Errorf("%w: %q is a field", ErrNotFound, path)
	}
	return Group{fr: g.fr, id: id}, nil
}

// Fields returns the group's direct member fields in declaration order.
func (g Group) Fields() []Field {
	var out []Field
	for _, child := range g.fr.node(g.id).children {
		if g.fr.nodes[child].kind == kindField {
			out = append(out, Field{fr: g.fr, id: child})
		}
	}
	return out
}

// Groups returns the group's direct member groups in declaration order.
func (g Group) Groups() []Group {
	var out []Group
	for _, child := range g.fr.node(g.id).children {
		if g.fr.nodes[child].kind == kindGroup {
			out = append(out, Group{fr: g.fr, id: child})
		}
	}
	return out
}

// Update runs one dependency-ordered update pass over the group's subtree.
func (g Group) Update() error {
	return g.fr.updateGroup(g.id)
}

// Name returns the field's name.
func (f Field) Name() string { return f.fr.node(f.id).name }

// Path returns the field's dotted path from the root.
func (f Field) Path() string { return f.fr.path(f.id) }

// Description returns the field's descriptive string.
func (f Field) Description() string { return f.fr.node(f.id).desc }

// IsSticky reports whether the field is excluded from update passes.
func (f Field) IsSticky() bool { return f.fr.node(f.id).sticky }

// IsConstant reports whether the field rejects writes.
func (f Field) IsConstant() bool { return f.fr.node(f.id).constant }

// Value returns a copy of the field's current value.
func (f Field) Value() num.Value { return f.fr.node(f.id).value.Clone() }

// Float returns the field's first element; the value itself for scalars.
func (f Field) Float() float64 { return f.fr.node(f.id).value.Float() }

// Set writes a value directly. The shape must match the shape established at
// creation and the field's constraint must pass.
func (f Field) Set(v num.Value) error {
	return f.fr.setFieldValue(f.id, v)
}

// SetFloat writes a scalar value.
func (f Field) SetFloat(v float64) error {
	return f.fr.setFieldValue(f.id, num.Scalar(v))
}

// DependsOn declares additional dependencies after creation.
func (f Field) DependsOn(paths ...string) {
	f.fr.node(f.id).deps = append(f.fr.node(f.id).deps, paths...)
	f.fr.invalidateOrder()
}

// Update invokes the field's updater once, regardless of stickiness. Fields
// without an updater are left alone.
func (f Field) Update() error {
	return f.fr.updateField(f.id)
}
