package instance

import (
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/muster-ensemble/internal/topology"
)

// Created records who is responsible for deleting an instance on undeploy.
// The zero value means the instance was not created by this engine (e.g. it
// was bound via a `select` directive) and must never be deleted.
type Created struct {
	ByEngine bool   // true ⇒ this instance's own delete operation applies on undeploy
	ByTaskID string // non-empty ⇒ a different instance's task created it (cascade delete)
}

// Relationship links a requirement on a source instance to a capability on
// a target instance.
type Relationship struct {
	Name             string
	RequirementName  string
	RelationshipType string
	Target           *Instance
	TargetCapability string
}

// Instance is the live, 1:1 runtime counterpart of a Template.
type Instance struct {
	mu sync.RWMutex

	Name     string
	Template *topology.Template

	Parent   *Instance
	Children []*Instance

	Requirements []*Relationship
	Capabilities []string // capability names this instance exposes

	Attributes map[string]any

	localStatus           Status
	manualOverrideStatus  *Status
	priority              Priority
	NodeState             NodeState
	LastConfigChange      string // changeId, monotonically increasing lexicographically
	LastStateChange       string
	Created               Created
	Protected             bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewInstance creates an instance bound to a template, with sensible
// defaults: optional priority, notapplied status, initial node state.
func NewInstance(name string, tmpl *topology.Template) *Instance {
	return &Instance{
		Name:       name,
		Template:   tmpl,
		Attributes: make(map[string]any),
		localStatus:  StatusNotApplied,
		priority:     PriorityOptional,
		NodeState:    NodeInitial,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

// Priority implements Operational.
func (i *Instance) Priority() Priority {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.priority
}

// SetPriority updates the instance's priority (used by configurator.shouldRun
// downgrades and by topology-declared priority).
func (i *Instance) SetPriority(p Priority) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.priority = p
}

// LocalStatus implements Operational.
func (i *Instance) LocalStatus() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.localStatus
}

// SetLocalStatus sets the instance's own declared status, enforcing
// invariant 4: absent/notapplied local status cannot coexist with a
// started/configured node state.
func (i *Instance) SetLocalStatus(s Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.localStatus = s
	if (s == StatusAbsent || s == StatusNotApplied) && i.NodeState.Live() {
		i.NodeState = NodeStopped
	}
}

// ManualOverrideStatus implements Operational.
func (i *Instance) ManualOverrideStatus() *Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.manualOverrideStatus
}

// SetManualOverrideStatus sets or clears (nil) the manual override.
func (i *Instance) SetManualOverrideStatus(s *Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.manualOverrideStatus = s
}

// OperationalDependencies implements Operational: a node's status depends
// on its children (it owns their lifecycle) and the targets of its
// requirements (it needs their capabilities to function), in declaration
// order: requirements first, then children.
func (i *Instance) OperationalDependencies() []Operational {
	i.mu.RLock()
	defer i.mu.RUnlock()
	deps := make([]Operational, 0, len(i.Requirements)+len(i.Children))
	for _, rel := range i.Requirements {
		if rel.Target != nil {
			deps = append(deps, rel.Target)
		}
	}
	for _, child := range i.Children {
		deps = append(deps, child)
	}
	return deps
}

// Status resolves the instance's externally visible aggregate status.
func (i *Instance) Status() Status {
	return ComputeStatus(i)
}

// AddChild links a child instance, setting its Parent pointer.
func (i *Instance) AddChild(child *Instance) {
	i.mu.Lock()
	defer i.mu.Unlock()
	child.Parent = i
	i.Children = append(i.Children, child)
}

// AddRequirement records a satisfied requirement edge. It enforces
// invariant 2: the relationship's declared type must be satisfiable by a
// capability the target instance actually exposes.
func (i *Instance) AddRequirement(rel *Relationship) error {
	if rel.Target == nil {
		return fmt.Errorf("instance %s: requirement %s has no target", i.Name, rel.RequirementName)
	}
	if rel.TargetCapability != "" && !rel.Target.HasCapability(rel.TargetCapability) {
		return fmt.Errorf("instance %s: requirement %s targets %s but capability %q is not exposed",
			i.Name, rel.RequirementName, rel.Target.Name, rel.TargetCapability)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Requirements = append(i.Requirements, rel)
	return nil
}

// HasCapability reports whether the instance exposes the named capability.
func (i *Instance) HasCapability(name string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, c := range i.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Touch bumps UpdatedAt; called whenever a task mutates the instance.
func (i *Instance) Touch() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.UpdatedAt = time.Now()
}

// GetAttribute reads an attribute under the read lock.
func (i *Instance) GetAttribute(key string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.Attributes[key]
	return v, ok
}

// SetAttribute writes an attribute under the write lock.
func (i *Instance) SetAttribute(key string, value any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Attributes == nil {
		i.Attributes = make(map[string]any)
	}
	i.Attributes[key] = value
}

// SnapshotAttributes returns a shallow copy of the attribute map, used by
// the attribute manager to support revert-on-notapplied (§4.5).
func (i *Instance) SnapshotAttributes() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]any, len(i.Attributes))
	for k, v := range i.Attributes {
		out[k] = v
	}
	return out
}

// RestoreAttributes replaces the attribute map wholesale, used to revert a
// task's in-task mutations.
func (i *Instance) RestoreAttributes(snapshot map[string]any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Attributes = snapshot
}
