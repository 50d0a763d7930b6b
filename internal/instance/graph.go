package instance

import "fmt"

// Graph is the live tree of node instances rooted at a topology root. It
// enforces invariant 1 (unique names) and provides the lookups the planner
// and runner need without re-walking the tree on every query.
//
// Graph is not safe for concurrent mutation from multiple goroutines; a
// single job runs on one logical thread of execution (spec §5), so callers
// serialize writes themselves.
type Graph struct {
	Root      *Instance
	byName    map[string]*Instance
}

// NewGraph creates an empty graph around the given root instance (which may
// be nil until the root template is planned).
func NewGraph(root *Instance) *Graph {
	g := &Graph{byName: make(map[string]*Instance)}
	if root != nil {
		g.Root = root
		g.byName[root.Name] = root
	}
	return g
}

// Add registers an instance in the graph, enforcing name uniqueness.
func (g *Graph) Add(inst *Instance) error {
	if g.byName == nil {
		g.byName = make(map[string]*Instance)
	}
	if existing, ok := g.byName[inst.Name]; ok && existing != inst {
		return fmt.Errorf("instance graph: duplicate instance name %q", inst.Name)
	}
	g.byName[inst.Name] = inst
	return nil
}

// Get looks up an instance by name.
func (g *Graph) Get(name string) (*Instance, bool) {
	inst, ok := g.byName[name]
	return inst, ok
}

// Remove deletes an instance from the graph (used when an undeploy task
// completes with StatusAbsent) and unlinks it from its parent's children.
func (g *Graph) Remove(name string) {
	inst, ok := g.byName[name]
	if !ok {
		return
	}
	if inst.Parent != nil {
		siblings := inst.Parent.Children
		for idx, child := range siblings {
			if child == inst {
				inst.Parent.Children = append(siblings[:idx], siblings[idx+1:]...)
				break
			}
		}
	}
	delete(g.byName, name)
}

// All returns every instance currently registered, in no particular order.
func (g *Graph) All() []*Instance {
	out := make([]*Instance, 0, len(g.byName))
	for _, inst := range g.byName {
		out = append(out, inst)
	}
	return out
}

// Walk performs a pre-order depth-first traversal starting at the root,
// visiting requirement targets before the instance itself is visited when
// deepFirst is true (used by the planner's deploy ordering); when false it
// visits the instance before descending (used for undeploy's reverse walk
// to be inverted by the caller).
func (g *Graph) Walk(deepFirst bool, visit func(*Instance) error) error {
	if g.Root == nil {
		return nil
	}
	seen := make(map[string]bool)
	return g.walk(g.Root, deepFirst, seen, visit)
}

func (g *Graph) walk(inst *Instance, deepFirst bool, seen map[string]bool, visit func(*Instance) error) error {
	if seen[inst.Name] {
		// Cycle: broken by declaration order per spec §4.3, with the caller
		// expected to have logged a warning when building the graph.
		return nil
	}
	seen[inst.Name] = true

	if deepFirst {
		for _, rel := range inst.Requirements {
			if rel.Target != nil {
				if err := g.walk(rel.Target, deepFirst, seen, visit); err != nil {
					return err
				}
			}
		}
	}

	if err := visit(inst); err != nil {
		return err
	}

	for _, child := range inst.Children {
		if err := g.walk(child, deepFirst, seen, visit); err != nil {
			return err
		}
	}

	if !deepFirst {
		for _, rel := range inst.Requirements {
			if rel.Target != nil {
				if err := g.walk(rel.Target, deepFirst, seen, visit); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
