// Package task defines the unit of work the runner executes: a Task bound
// to a target instance and a ConfigSpec, its ChangeRecord, TaskRequest and
// JobRequest (the two things a configurator may hand back mid-run), and the
// AttributeManager that mediates all attribute mutation during a task's
// execution.
package task

import (
	"time"

	"github.com/giantswarm/muster-ensemble/internal/instance"
)

// Status of a finished (or skipped) task, as reported in the job summary.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
	StatusPending Status = "pending"
)

// Task is a single execution of an operation against a target instance.
// It implements instance.Operational so that job-level status aggregation
// (spec §4.1, applied to a Job) can fold task outcomes in the same way
// instances fold their dependencies.
type Task struct {
	ChangeID  ChangeID
	ParentID  ChangeID
	Request   TaskRequest
	Target    *instance.Instance
	Reason    string
	StartTime time.Time

	AttrManager *AttributeManager
	Dependencies []*Dependency

	Rendered any // the value configurator.Render produced, available to Run

	result      ConfiguratorResult
	status      Status
	messages    []string
	changed     bool
	priority    instance.Priority
}

// NewTask constructs a task for a request, snapshotting the target's
// attributes immediately so any gating failure that still mutates state
// (it shouldn't, but defensively) cannot corrupt the revert baseline.
func NewTask(id, parentID ChangeID, req TaskRequest) *Task {
	t := &Task{
		ChangeID:  id,
		ParentID:  parentID,
		Request:   req,
		Target:    req.Target,
		Reason:    req.Reason,
		StartTime: time.Now(),
		status:    StatusPending,
		priority:  instance.PriorityOptional,
	}
	if req.Target != nil {
		t.AttrManager = NewAttributeManager(req.Target)
		t.priority = req.Target.Priority()
	}
	return t
}

// Finish records a terminal ConfiguratorResult and derives the task's
// externally visible Status and "changed" flag.
func (t *Task) Finish(result ConfiguratorResult) {
	t.result = result
	t.messages = append(t.messages, result.Messages...)
	switch {
	case result.Reason != "" && !result.Applied && !result.Modified && result.Success:
		t.status = StatusSkipped
	case !result.Success:
		t.status = StatusError
	default:
		t.status = StatusOK
	}
	t.changed = t.deduceConfigChanged()
}

// deduceConfigChanged decides the task's "changed" flag (§4.5): an explicit
// ConfigChanged wins; a skipped task is unchanged; an attribute write is a
// change; a task with Dependencies is changed only when it was scheduled
// for "dependencies changed". Every other task counts as changed: inputs
// are not compared here, and the absence of attribute writes alone does not
// make a task unchanged.
func (t *Task) deduceConfigChanged() bool {
	if t.result.ConfigChanged != nil {
		return *t.result.ConfigChanged
	}
	if t.status == StatusSkipped {
		return false
	}
	if t.AttrManager != nil && t.AttrManager.Changed() {
		return true
	}
	if len(t.Dependencies) > 0 {
		// Dependencies were already re-evaluated by the runner before the
		// task ran (it is gated on them in §4.4 step 4); the fact that this
		// task was scheduled at all for a dependenciesChanged reason is
		// recorded in t.Reason, not re-derived here.
		return t.Reason == "dependencies changed"
	}
	// Conservative default: assume the worst, matching unfurl's
	// ConfigTask._setConfigStatus "be conservative, assume the worse".
	return true
}

// Result returns the terminal ConfiguratorResult (zero value before Finish).
func (t *Task) Result() ConfiguratorResult { return t.result }

// Status returns the task's externally visible terminal status.
func (t *Task) Status() Status { return t.status }

// Changed reports whether this task counts as a "changed" task in the job
// summary (spec §6).
func (t *Task) Changed() bool { return t.changed }

// --- instance.Operational ---

// Priority implements instance.Operational.
func (t *Task) Priority() instance.Priority { return t.priority }

// LocalStatus implements instance.Operational, mapping the task's
// ConfiguratorResult readyState (or a default while pending) onto the
// instance.Status scale used for job-level aggregation.
func (t *Task) LocalStatus() instance.Status {
	if t.status == StatusPending {
		return instance.StatusPending
	}
	if t.status == StatusSkipped {
		return instance.StatusOK
	}
	if t.status == StatusError {
		return instance.StatusError
	}
	return t.result.ReadyState
}

// ManualOverrideStatus implements instance.Operational; tasks never carry a
// manual override.
func (t *Task) ManualOverrideStatus() *instance.Status { return nil }

// OperationalDependencies implements instance.Operational: a task reports
// no dependencies, so its status is its own LocalStatus. Its target's
// required dependencies are checked by the runner's gate (§4.4 step 4)
// before the task runs, not here.
func (t *Task) OperationalDependencies() []instance.Operational {
	return nil
}

// ToChangeRecord builds the immutable audit entry for this finished task.
func (t *Task) ToChangeRecord(action, inputsDigest, depsDigest, commitID string) ChangeRecord {
	targetName := ""
	if t.Target != nil {
		targetName = t.Target.Name
	}
	return ChangeRecord{
		ChangeID:           t.ChangeID,
		ParentID:           t.ParentID,
		StartTime:          t.StartTime,
		CommitID:           commitID,
		Action:             action,
		Target:             targetName,
		Operation:          t.Request.ConfigSpec.Interface + "." + t.Request.ConfigSpec.Operation,
		InputsDigest:       inputsDigest,
		DependenciesDigest: depsDigest,
		SpecVersion:        t.Request.ConfigSpec.Version,
		Result:             t.LocalStatus().String(),
		ResourceChanges:    t.result.Outputs,
		Reason:             t.Reason,
		Messages:           t.messages,
	}
}
