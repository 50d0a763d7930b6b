package instance

// Operational is implemented by every Status-bearing entity: instances,
// tasks and jobs all compute their externally visible status the same way,
// by folding the statuses of the things they depend on into their own
// locally declared status.
type Operational interface {
	// Priority reports how this entity's non-operational state should
	// affect whatever depends on it.
	Priority() Priority
	// LocalStatus is the entity's own declared status, before folding in
	// dependencies.
	LocalStatus() Status
	// ManualOverrideStatus, when non-nil, replaces LocalStatus before
	// aggregation runs. It does not by itself suppress dependency
	// propagation unless the override is itself >= StatusError.
	ManualOverrideStatus() *Status
	// OperationalDependencies lists the other Operational entities whose
	// status contributes to this entity's aggregate status, in
	// declaration order.
	OperationalDependencies() []Operational
}

// AggregateStatus implements the §4.1 aggregation rule: it folds dep
// statuses into defaultStatus in declaration order, short-circuiting to
// StatusError the moment a required dependency is non-operational.
//
//	for each dep d, in declaration order:
//	  if d.priority == ignore: skip
//	  if d.required:
//	    if not d.operational: return error
//	    if d.status == degraded: accumulated = degraded
//	  else:
//	    if not d.operational: accumulated = degraded
//	return accumulated (else defaultStatus)
func AggregateStatus(deps []Operational, defaultStatus Status) Status {
	state := defaultStatus
	for _, dep := range deps {
		if dep.Priority() == PriorityIgnore {
			continue
		}
		depStatus := ComputeStatus(dep)
		if dep.Priority().Required() {
			if !depStatus.Operational() {
				return StatusError
			}
			if depStatus == StatusDegraded {
				state = StatusDegraded
			}
		} else {
			if !depStatus.Operational() {
				state = StatusDegraded
			}
		}
	}
	return state
}

// ComputeStatus resolves an Operational's externally visible status:
// the manual override (if any and itself terminal) wins outright;
// otherwise the local/override status seeds AggregateStatus over the
// entity's dependencies.
func ComputeStatus(o Operational) Status {
	local := o.LocalStatus()
	if override := o.ManualOverrideStatus(); override != nil {
		local = *override
	}
	if local >= StatusError {
		return local
	}
	return AggregateStatus(o.OperationalDependencies(), local)
}
