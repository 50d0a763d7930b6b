package task

import (
	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/topology"
)

// ConfigSpec names the configurator and operation a TaskRequest asks the
// runner to execute, plus the raw (unevaluated) inputs from the topology.
type ConfigSpec struct {
	Implementation string
	Interface      string
	Operation      string
	Action         string // deploy/undeploy/check/discover/stop/run
	Inputs         map[string]any
	Version        string
	Timeout        int // seconds, 0 = no timeout
	ExcludePrefix  []string
	PreConditions  []topology.Condition
	PostConditions []topology.Condition
}

// TaskRequest is emitted by the planner for the runner to execute
// (spec.md §3, "TaskRequest").
type TaskRequest struct {
	ConfigSpec ConfigSpec
	Target     *instance.Instance
	Reason     string
	Persist    bool
	Required   bool
}

// JobRequest is a set of new/affected instances the runner must reconcile
// as a child job (spec.md §3, "JobRequest").
type JobRequest struct {
	Instances []*instance.Instance
	Errors    []error
}

// Dependency is a live predicate attached to a task/instance (spec.md §3).
type Dependency struct {
	Ref          string // expression over the instance graph
	Expected     any    // value or schema the ref is expected to match
	Required     bool
	WantList     bool
	LastObserved any
}

// HasChanged compares the dependency's current value, already evaluated by
// the caller (so this package stays independent of internal/expr), with
// LastObserved.
func (d *Dependency) HasChanged(current any) bool {
	return !deepEqual(current, d.LastObserved)
}

func deepEqual(a, b any) bool {
	// Dependencies compare serialized scalar/map/slice values; a simple
	// recursive equality is sufficient since values originate from YAML/JSON
	// decoding (no function or channel types reach here).
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap || bIsMap {
		if !aIsMap || !bIsMap || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			if ov, ok := bm[k]; !ok || !deepEqual(v, ov) {
				return false
			}
		}
		return true
	}
	as, aIsSlice := a.([]any)
	bs, bIsSlice := b.([]any)
	if aIsSlice || bIsSlice {
		if !aIsSlice || !bIsSlice || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !deepEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
