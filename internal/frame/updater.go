package frame

import "fmt"

// The update engine resolves, per group, the order in which member fields
// recompute. Dependencies are declared per field as dotted paths and form a
// directed graph overlaying the ownership tree; resolution is a stable
// topological sort with ties broken by declaration order. The resolved order
// is cached per group and invalidated only by structural changes, never by
// value writes.

func (fr *Frame) invalidateOrder() {
	fr.orderCache = nil
}

func (fr *Frame) order(gid nodeID) ([]nodeID, error) {
	if cached, ok := fr.orderCache[gid]; ok {
		return cached, nil
	}
	order, err := fr.resolveOrder(gid)
	if err != nil {
		return nil, err
	}
	if fr.orderCache == nil {
		fr.orderCache = make(map[nodeID][]nodeID)
	}
	fr.orderCache[gid] = order
	return order, nil
}

// collectFields gathers the subtree's fields in declaration (depth-first)
// order.
func (fr *Frame) collectFields(gid nodeID, out *[]nodeID) {
	for _, child := range fr.node(gid).children {
		switch fr.nodes[child].kind {
		case kindField:
			*out = append(*out, child)
		case kindGroup:
			fr.collectFields(child, out)
		}
	}
}

// depTargets resolves one dependency path to the field handles it stands
// for. A path naming a group stands for every field in that group's subtree.
func (fr *Frame) depTargets(path string) ([]nodeID, error) {
	id, err := fr.resolve(fr.root, path)
	if err != nil {
		return nil, err
	}
	if fr.node(id).kind == kindField {
		return []nodeID{id}, nil
	}
	var fields []nodeID
	fr.collectFields(id, &fields)
	return fields, nil
}

func (fr *Frame) resolveOrder(gid nodeID) ([]nodeID, error) {
	var fields []nodeID
	fr.collectFields(gid, &fields)

	decl := make(map[nodeID]int, len(fields))
	for i, id := range fields {
		decl[id] = i
	}

	// edges[to] lists the fields that must run before to
	indegree := make(map[nodeID]int, len(fields))
	succ := make(map[nodeID][]nodeID, len(fields))
	addEdge := func(from, to nodeID) {
		if from == to {
			return
		}
		if _, ok := decl[from]; !ok {
			return // dependency outside this subtree; ordered by its own group
		}
		succ[from] = append(succ[from], to)
		indegree[to]++
	}

	for _, id := range fields {
		n := fr.node(id)
		for _, dep := range n.deps {
			targets, err := fr.depTargets(dep)
			if err != nil {
				return nil, fmt.Errorf("dependency of %q: %w", fr.path(id), err)
			}
			for _, from := range targets {
				addEdge(from, id)
			}
		}
		for _, hint := range n.after {
			targets, err := fr.depTargets(hint)
			if err != nil {
				return nil, fmt.Errorf("ordering hint of %q: %w", fr.path(id), err)
			}
			for _, from := range targets {
				addEdge(from, id)
			}
		}
		for _, hint := range n.before {
			targets, err := fr.depTargets(hint)
			if err != nil {
				return nil, fmt.Errorf("ordering hint of %q: %w", fr.path(id), err)
			}
			for _, to := range targets {
				addEdge(id, to)
			}
		}
	}

	// Stable Kahn: among ready fields, always pick the earliest declared.
	done := make(map[nodeID]bool, len(fields))
	order := make([]nodeID, 0, len(fields))
	for len(order) < len(fields) {
		picked := invalidID
		for _, id := range fields {
			if !done[id] && indegree[id] == 0 {
				picked = id
				break
			}
		}
		if picked == invalidID {
			remaining := make(map[nodeID]bool)
			for _, id := range fields {
				if !done[id] {
					remaining[id] = true
				}
			}
			// Fields that merely depend on a cycle also stall; report only
			// the fields forming one, i.e. those that can reach themselves.
			var members []string
			for _, id := range fields {
				if remaining[id] && onCycle(id, succ, remaining) {
					members = append(members, fr.path(id))
				}
			}
			return nil, &CycleError{Members: members}
		}
		done[picked] = true
		order = append(order, picked)
		for _, next := range succ[picked] {
			indegree[next]--
		}
	}

	return order, nil
}

// onCycle reports whether start can reach itself along edges inside the
// remaining set.
func onCycle(start nodeID, succ map[nodeID][]nodeID, remaining map[nodeID]bool) bool {
	seen := make(map[nodeID]bool)
	stack := []nodeID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range succ[id] {
			if !remaining[next] {
				continue
			}
			if next == start {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// updateGroup executes one update pass over the subtree rooted at gid:
// member fields in resolved order, then group updaters children-first. An
// updater error aborts the pass immediately; fields updated earlier keep
// their new values.
func (fr *Frame) updateGroup(gid nodeID) error {
	order, err := fr.order(gid)
	if err != nil {
		return err
	}
	for _, id := range order {
		n := fr.node(id)
		if n.sticky || n.updater == nil {
			continue
		}
		if err := fr.updateField(id); err != nil {
			return err
		}
	}
	return fr.runGroupUpdaters(gid)
}

func (fr *Frame) runGroupUpdaters(gid nodeID) error {
	for _, child := range fr.node(gid).children {
		if fr.nodes[child].kind == kindGroup {
			if err := fr.runGroupUpdaters(child); err != nil {
				return err
			}
		}
	}
	if fn := fr.node(gid).grpUpd; fn != nil {
		if err := fn(fr); err != nil {
			return &UpdateError{Field: fr.path(gid), Wrapped: err}
		}
	}
	return nil
}

func (fr *Frame) updateField(id nodeID) error {
	n := fr.node(id)
	if n.updater == nil {
		return nil
	}
	v, err := n.updater(fr)
	if err != nil {
		return &UpdateError{Field: fr.path(id), Wrapped: err}
	}
	if err := fr.setFieldValue(id, v); err != nil {
		return &UpdateError{Field: fr.path(id), Wrapped: err}
	}
	return nil
}
