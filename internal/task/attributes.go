package task

import "github.com/giantswarm/muster-ensemble/internal/instance"

// AttributeManager owns the only mutable view of instance attributes during
// a task. It snapshots the pre-task attributes of the task's own target so
// a revert (§4.5, applied=false && readyState=notapplied) can restore them;
// sub-task attribute mutations are never touched by a parent's revert — each
// task's AttributeManager owns only its own target's snapshot (Open
// Question 2, resolved in DESIGN.md).
type AttributeManager struct {
	target   *instance.Instance
	snapshot map[string]any
	written  map[string]bool // keys written through Set
}

// NewAttributeManager snapshots the target's current attributes.
func NewAttributeManager(target *instance.Instance) *AttributeManager {
	return &AttributeManager{
		target:   target,
		snapshot: target.SnapshotAttributes(),
	}
}

// Set writes an attribute on the task's target.
func (m *AttributeManager) Set(key string, value any) {
	if m.written == nil {
		m.written = make(map[string]bool)
	}
	m.written[key] = true
	m.target.SetAttribute(key, value)
	m.target.Touch()
}

// Revert restores every attribute this manager wrote to its pre-task value,
// removing the ones that did not exist before the task; attributes written
// by other tasks (sub-tasks on the same target included) are left as they
// are. It is called only when a task's ConfiguratorResult has Applied=false
// and ReadyState=StatusNotApplied (§4.5).
func (m *AttributeManager) Revert() {
	current := m.target.SnapshotAttributes()
	for key := range m.written {
		if v, ok := m.snapshot[key]; ok {
			current[key] = v
		} else {
			delete(current, key)
		}
	}
	m.target.RestoreAttributes(current)
}

// Changed reports whether any attribute differs from the snapshot. When
// ConfigChanged is nil, Task.deduceConfigChanged counts a difference as a
// change; no difference does not by itself make the task unchanged.
func (m *AttributeManager) Changed() bool {
	current := m.target.SnapshotAttributes()
	if len(current) != len(m.snapshot) {
		return true
	}
	for k, v := range current {
		if ov, ok := m.snapshot[k]; !ok || !deepEqual(v, ov) {
			return true
		}
	}
	return false
}
