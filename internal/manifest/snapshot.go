package manifest

import (
	"sort"

	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/topology"
)

// SnapshotGraph populates status.topology.instances from the live instance
// graph, the form spec.md §6 persists between jobs so the next run's
// planner has something to diff against even before any ChangeRecord is
// read.
func (d *Document) SnapshotGraph(g *instance.Graph) {
	for _, inst := range g.All() {
		d.SetInstanceRecord(inst.Name, instanceRecordOf(inst))
	}
}

// BuildGraph reconstructs the live instance graph from the persisted
// status.topology.instances tree, binding each record's Template name
// against topo so the planner has a real *topology.Template to plan
// against. Requirement edges are wired in a second pass once every
// instance exists, so forward references within the tree resolve.
func (d *Document) BuildGraph(topo *topology.Topology) (*instance.Graph, error) {
	instances := make(map[string]*instance.Instance, len(d.Status.Topology.Instances))

	for name, rec := range d.Status.Topology.Instances {
		tmpl := topo.Templates[rec.Template]
		inst := instance.NewInstance(name, tmpl)
		for k, v := range rec.Attributes {
			inst.SetAttribute(k, v)
		}
		if status, err := instance.ParseStatus(rec.ReadyState.Local); err == nil {
			inst.SetLocalStatus(status)
		}
		if priority, err := instance.ParsePriority(rec.Priority); err == nil {
			inst.SetPriority(priority)
		}
		inst.Capabilities = make([]string, 0, len(rec.Capabilities))
		for capName := range rec.Capabilities {
			inst.Capabilities = append(inst.Capabilities, capName)
		}
		inst.Created = instance.Created{ByTaskID: rec.CreatedFrom, ByEngine: rec.CreatedByEngine}
		inst.Protected = rec.Protected
		inst.CreatedAt = rec.CreatedOn
		instances[name] = inst
	}

	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}
	sort.Strings(names)

	var g *instance.Graph
	for _, name := range names {
		if g == nil {
			g = instance.NewGraph(instances[name])
			continue
		}
		if err := g.Add(instances[name]); err != nil {
			return nil, err
		}
	}
	if g == nil {
		g = instance.NewGraph(nil)
	}

	for name, rec := range d.Status.Topology.Instances {
		source := instances[name]
		for reqName, targetName := range rec.Requirements {
			target, ok := instances[targetName]
			if !ok {
				continue
			}
			_ = source.AddRequirement(&instance.Relationship{Name: reqName, Target: target})
		}
		for childName := range rec.Children {
			if child, ok := instances[childName]; ok {
				source.AddChild(child)
			}
		}
	}

	return g, nil
}

func instanceRecordOf(inst *instance.Instance) InstanceRecord {
	templateName := ""
	if inst.Template != nil {
		templateName = inst.Template.Name
	}

	caps := make(map[string]bool, len(inst.Capabilities))
	for _, c := range inst.Capabilities {
		caps[c] = true
	}

	reqs := make(map[string]string, len(inst.Requirements))
	for _, rel := range inst.Requirements {
		if rel.Target != nil {
			reqs[rel.Name] = rel.Target.Name
		}
	}

	children := make(map[string]bool, len(inst.Children))
	for _, c := range inst.Children {
		children[c.Name] = true
	}

	return InstanceRecord{
		Template:        templateName,
		Attributes:      inst.SnapshotAttributes(),
		ReadyState:      ReadyState{Local: inst.LocalStatus().String(), State: inst.NodeState.String()},
		Priority:        inst.Priority().String(),
		Capabilities:    caps,
		Requirements:    reqs,
		Children:        children,
		CreatedOn:       inst.CreatedAt,
		CreatedFrom:     inst.Created.ByTaskID,
		CreatedByEngine: inst.Created.ByEngine,
		Protected:       inst.Protected,
	}
}
