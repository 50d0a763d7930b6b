// Package runner drives the cooperative configurator protocol described in
// spec.md §4.4–§4.6: it pulls TaskRequests, gates them, hands them to a
// configurator, and applies the terminal ConfiguratorResult back onto the
// target instance, appending an immutable ChangeRecord for each task.
// Grounded on unfurl/job.py's Job.run loop and ConfigTask gating sequence.
package runner

import (
	"fmt"

	"github.com/giantswarm/muster-ensemble/internal/configurator"
	"github.com/giantswarm/muster-ensemble/internal/digest"
	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/task"
	"github.com/giantswarm/muster-ensemble/internal/topology"
	"github.com/giantswarm/muster-ensemble/pkg/logging"
)

// ConditionEvaluator evaluates a topology.Condition's ref expression,
// relative to the instance named self, against the live instance graph and
// reports whether it matches Condition.Expected. The runner package stays
// independent of internal/expr, mirroring planner.InputResolver; production
// wiring supplies an evaluator backed by expr.GraphResolver (see
// cmd/conditions.go). A nil Conditions field treats every condition as
// unevaluable and therefore satisfied, matching the zero-value behavior of
// a job that never wires one.
type ConditionEvaluator interface {
	Evaluate(self string, cond topology.Condition) (bool, error)
}

// AbortPolicy decides, after a task finishes, whether the job should stop
// pulling further requests. The default policy never aborts.
type AbortPolicy func(t *task.Task) bool

// NeverAbort is the default AbortPolicy (spec §4.4 step 7: "default false").
func NeverAbort(*task.Task) bool { return false }

// AbortOnRequiredError stops the job the first time a required task ends
// in error, a common stricter policy offered alongside the default.
func AbortOnRequiredError(t *task.Task) bool {
	return t.Status() == task.StatusError && t.Priority().Required()
}

// Runner executes a single job's TaskRequest stream against a configurator
// registry and a live instance graph.
type Runner struct {
	Registry    *configurator.Registry
	Graph       *instance.Graph
	AbortPolicy AbortPolicy
	CommitID    string
	Metrics     *Metrics
	// DryRun mirrors JobOptions.DryRun (spec §4.6): when set, any task whose
	// configurator reports CanDryRun false is skipped before Render/Run
	// ever runs, instead of actually applying the change.
	DryRun bool
	// Conditions evaluates preConditions/postConditions (spec §4.4 steps
	// 4 and 7). Left nil, every condition is treated as satisfied.
	Conditions ConditionEvaluator

	jobOrdinal  int
	taskOrdinal int
	workDone    map[string]bool

	// tasks/changeRecords accumulate every task executed within the job,
	// including sub-tasks and child-job tasks a configurator's producer
	// caused to run — not just the top-level requests RunJob was handed.
	tasks         []*task.Task
	changeRecords []task.ChangeRecord
}

// New builds a Runner for one job. jobOrdinal seeds every task's ChangeID
// (spec.md §3: "%06d:%06d" job:task ordinal).
func New(registry *configurator.Registry, graph *instance.Graph, jobOrdinal int) *Runner {
	return &Runner{
		Registry:    registry,
		Graph:       graph,
		AbortPolicy: NeverAbort,
		jobOrdinal:  jobOrdinal,
		workDone:    make(map[string]bool),
	}
}

// JobResult is everything a completed job produced.
type JobResult struct {
	Tasks         []*task.Task
	ChangeRecords []task.ChangeRecord
	Aborted       bool
	Errors        []error
}

// Status aggregates every task this job ran, sub-tasks and child-job tasks
// included, the same way an instance aggregates its dependencies (spec §4.1
// applied at job scope).
func (r JobResult) Status() instance.Status {
	deps := make([]instance.Operational, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		deps = append(deps, t)
	}
	return instance.AggregateStatus(deps, instance.StatusOK)
}

// RunJob drains the planner's TaskRequest stream, dispatching each through
// the full gating → configurator → result-application pipeline (§4.4). The
// returned JobResult's Tasks/ChangeRecords include every task this job ran,
// including sub-tasks and child-job tasks spawned along the way.
func (r *Runner) RunJob(requests []task.TaskRequest) JobResult {
	var aborted bool

	queue := append([]task.TaskRequest(nil), requests...)
	for len(queue) > 0 {
		req := queue[0]
		queue = queue[1:]

		key := dedupeKey(req)
		if r.workDone[key] {
			continue
		}
		r.workDone[key] = true

		tk := r.executeTask(req, NewJobRootID(r.jobOrdinal))

		if r.abortPolicy()(tk) {
			aborted = true
			break
		}
	}

	return JobResult{Tasks: r.tasks, ChangeRecords: r.changeRecords, Aborted: aborted}
}

// NewJobRootID is the ChangeID of a synthetic root used only as the
// ParentID for top-level tasks within job jobOrdinal.
func NewJobRootID(jobOrdinal int) task.ChangeID {
	return task.NewChangeID(jobOrdinal, 0)
}

func (r *Runner) abortPolicy() AbortPolicy {
	if r.AbortPolicy == nil {
		return NeverAbort
	}
	return r.AbortPolicy
}

func dedupeKey(req task.TaskRequest) string {
	name := ""
	if req.Target != nil {
		name = req.Target.Name
	}
	return name + "/" + req.ConfigSpec.Interface + "." + req.ConfigSpec.Operation
}

func (r *Runner) nextChangeID() task.ChangeID {
	r.taskOrdinal++
	return task.NewChangeID(r.jobOrdinal, r.taskOrdinal)
}

// executeTask runs one TaskRequest through gating, the configurator's
// cooperative protocol, and result application, returning the finished
// Task. It recurses for sub-TaskRequests a configurator yields.
func (r *Runner) executeTask(req task.TaskRequest, parentID task.ChangeID) *task.Task {
	tk := task.NewTask(r.nextChangeID(), parentID, req)

	logging.Debug("Runner", "gating %s %s.%s via %q", dedupeKey(req), req.ConfigSpec.Interface, req.ConfigSpec.Operation, req.ConfigSpec.Implementation)

	cfg, ok := r.Registry.New(req.ConfigSpec.Implementation)
	if !ok {
		tk.Finish(task.Errored(fmt.Sprintf("no configurator registered for implementation %q", req.ConfigSpec.Implementation)))
		return r.finish(tk)
	}

	if req.Required && req.Target != nil && !requiredDependenciesOperational(req.Target) {
		logging.Debug("Runner", "%s: skipped, required dependency not operational", dedupeKey(req))
		tk.Finish(task.Skipped("required dependency is not operational"))
		return r.finish(tk)
	}

	if ok, reason := validateInputs(req); !ok {
		logging.Debug("Runner", "%s: %s", dedupeKey(req), reason)
		tk.Finish(task.Skipped(reason))
		return r.finish(tk)
	}

	if ok, reason := r.evaluateConditions(req, req.ConfigSpec.PreConditions, "precondition"); !ok {
		logging.Debug("Runner", "%s: %s", dedupeKey(req), reason)
		tk.Finish(task.Skipped(reason))
		return r.finish(tk)
	}

	if ok, reason := cfg.CanRun(tk); !ok {
		logging.Debug("Runner", "%s: CanRun refused: %s", dedupeKey(req), reason)
		tk.Finish(task.Skipped(reason))
		return r.finish(tk)
	}

	priority := cfg.ShouldRun(tk)
	if priority == instance.PriorityIgnore {
		logging.Debug("Runner", "%s: ShouldRun downgraded to ignore", dedupeKey(req))
		tk.Finish(task.Skipped("configurator downgraded priority to ignore"))
		return r.finish(tk)
	}

	if r.DryRun && !cfg.CanDryRun(tk) {
		logging.Debug("Runner", "%s: dry-run unsupported by this configurator", dedupeKey(req))
		tk.Finish(task.Skipped("dry-run unsupported"))
		return r.finish(tk)
	}

	rendered, err := cfg.Render(tk)
	if err != nil {
		tk.Finish(task.Errored(fmt.Sprintf("render: %v", err)))
		return r.finish(tk)
	}
	tk.Rendered = rendered

	producer, err := cfg.Run(tk)
	if err != nil {
		tk.Finish(task.Errored(fmt.Sprintf("run: %v", err)))
		return r.finish(tk)
	}

	result, err := r.driveProducer(tk, producer)
	if err != nil {
		tk.Finish(task.Errored(fmt.Sprintf("configurator protocol error: %v", err)))
	} else {
		tk.Finish(r.demoteOnUnmetPostConditions(req, result))
	}
	return r.finish(tk)
}

// validateInputs checks a task's resolved inputs against the operation's
// declared schema (spec §4.4 step 4). The topology carries no independent
// schema type (see DESIGN.md), so this reduces to the check unfurl's
// findInvalidateInputs performs first: every declared input must have
// resolved to a concrete value.
func validateInputs(req task.TaskRequest) (bool, string) {
	for key, value := range req.ConfigSpec.Inputs {
		if value == nil {
			return false, fmt.Sprintf("invalid inputs: %q did not resolve to a value", key)
		}
	}
	return true, ""
}

// evaluateConditions evaluates every condition in conds against the task's
// target instance. kind only labels the skip reason (e.g. "precondition").
func (r *Runner) evaluateConditions(req task.TaskRequest, conds []topology.Condition, kind string) (bool, string) {
	if r.Conditions == nil || req.Target == nil {
		return true, ""
	}
	for _, cond := range conds {
		ok, err := r.Conditions.Evaluate(req.Target.Name, cond)
		if err != nil {
			logging.Warn("Runner", "evaluating %s %q: %v", kind, cond.Ref, err)
			continue
		}
		if !ok {
			return false, fmt.Sprintf("%s not met: %s", kind, cond.Ref)
		}
	}
	return true, ""
}

// demoteOnUnmetPostConditions implements spec §4.4 step 7 / §7.5: a
// successful result whose declared postConditions do not all hold is
// demoted from ok to degraded rather than treated as a failure.
func (r *Runner) demoteOnUnmetPostConditions(req task.TaskRequest, result task.ConfiguratorResult) task.ConfiguratorResult {
	if !result.Success || r.Conditions == nil || req.Target == nil || len(req.ConfigSpec.PostConditions) == 0 {
		return result
	}
	for _, cond := range req.ConfigSpec.PostConditions {
		ok, err := r.Conditions.Evaluate(req.Target.Name, cond)
		if err != nil {
			logging.Warn("Runner", "evaluating postcondition %q: %v", cond.Ref, err)
			continue
		}
		if ok {
			continue
		}
		logging.Debug("Runner", "%s: postcondition %q unmet, demoting to degraded", dedupeKey(req), cond.Ref)
		if result.ReadyState == instance.StatusOK {
			result.ReadyState = instance.StatusDegraded
		}
		result.Messages = append(result.Messages, fmt.Sprintf("postcondition unmet: %s", cond.Ref))
	}
	return result
}

// finish applies §4.5's result-application rules, records the task and its
// ChangeRecord on the job's running history, reports it to metrics, and
// returns it for the caller's convenience.
func (r *Runner) finish(tk *task.Task) *task.Task {
	inputsDigest, depsDigest := r.digestsFor(tk)
	r.applyResult(tk)

	r.tasks = append(r.tasks, tk)
	r.changeRecords = append(r.changeRecords, tk.ToChangeRecord(tk.Request.ConfigSpec.Action, inputsDigest, depsDigest, r.CommitID))

	if r.Metrics != nil {
		r.Metrics.ObserveTask(tk)
	}
	return tk
}

// driveProducer repeatedly calls Next, recursing into sub-TaskRequests and
// sub-JobRequests inline (spec §5: "child jobs run to completion before
// their spawning task is resumed") until a terminal ConfiguratorResult is
// yielded.
func (r *Runner) driveProducer(parent *task.Task, producer configurator.Producer) (task.ConfiguratorResult, error) {
	var resume any
	for {
		step, err := producer.Next(resume)
		if err != nil {
			return task.ConfiguratorResult{}, err
		}
		switch step.Kind() {
		case configurator.KindTerminal:
			return *step.ConfiguratorResult, nil
		case configurator.KindTaskRequest:
			subTask := r.executeTask(*step.TaskRequest, parent.ChangeID)
			result := subTask.Result()
			resume = &result
		case configurator.KindJobRequest:
			result := r.runChildJob(*step.JobRequest, parent.ChangeID)
			resume = &result
		default:
			return task.ConfiguratorResult{}, fmt.Errorf("producer yielded a Step with none or multiple of TaskRequest/JobRequest/ConfiguratorResult set")
		}
	}
}

// runChildJob reconciles a freshly discovered set of instances (spec §3
// "JobRequest") to completion before returning control to the spawning
// producer. Each new instance is added to the graph and, if its template
// declares a create operation, deployed; instances with no create
// operation are assumed already live (e.g. discovered, not provisioned)
// and simply registered.
func (r *Runner) runChildJob(jobReq task.JobRequest, parentID task.ChangeID) task.ConfiguratorResult {
	var subTasks []*task.Task
	for _, inst := range jobReq.Instances {
		if err := r.Graph.Add(inst); err != nil {
			logging.Warn("Runner", "child job: %v", err)
			continue
		}
		if inst.Template == nil {
			continue
		}
		opSpec, ok := inst.Template.Operation("Standard", "create")
		if !ok {
			continue
		}
		req := task.TaskRequest{
			ConfigSpec: task.ConfigSpec{
				Implementation: opSpec.Implementation,
				Interface:      opSpec.Interface,
				Operation:      opSpec.Operation,
				Action:         "deploy",
				Inputs:         opSpec.Inputs,
				Version:        opSpec.Version,
				Timeout:        int(opSpec.Timeout.Seconds()),
				ExcludePrefix:  opSpec.ExcludeFromInput,
			},
			Target:   inst,
			Reason:   "child job",
			Required: inst.Priority().Required(),
		}
		key := dedupeKey(req)
		if r.workDone[key] {
			continue
		}
		r.workDone[key] = true
		subTk := r.executeTask(req, parentID)
		subTasks = append(subTasks, subTk)
	}

	if len(jobReq.Errors) > 0 {
		return task.ConfiguratorResult{Success: false, Applied: true, Modified: len(subTasks) > 0, ReadyState: instance.StatusError, Reason: jobReq.Errors[0].Error()}
	}

	deps := make([]instance.Operational, 0, len(subTasks))
	for _, t := range subTasks {
		deps = append(deps, t)
	}
	aggregate := instance.AggregateStatus(deps, instance.StatusOK)
	return task.ConfiguratorResult{
		Success:    aggregate.Operational() || aggregate == instance.StatusPending,
		Applied:    true,
		Modified:   len(subTasks) > 0,
		ReadyState: aggregate,
	}
}

// requiredDependenciesOperational reports whether every operational
// dependency of an instance (requirement targets and children) whose own
// priority is required has an operational LocalStatus (spec §4.4 step 4's
// "required dependencies" gate).
func requiredDependenciesOperational(target *instance.Instance) bool {
	for _, dep := range target.OperationalDependencies() {
		if dep.Priority().Required() && !dep.LocalStatus().Operational() {
			return false
		}
	}
	return true
}

// digestsFor computes the inputs/dependencies digests for the finished
// task's ChangeRecord, matching the same recipe the planner used to decide
// whether to run it (§4.2).
func (r *Runner) digestsFor(tk *task.Task) (inputsDigest, depsDigest string) {
	inputsDigest = digest.ComputeInputsDigest(tk.Request.ConfigSpec.Inputs, tk.Request.ConfigSpec.ExcludePrefix)
	deps := map[string]any{}
	if tk.Target != nil {
		for _, rel := range tk.Target.Requirements {
			if rel.Target == nil {
				continue
			}
			deps[rel.Name] = rel.Target.Status().String()
		}
	}
	depsDigest = digest.ComputeInputsDigest(deps, nil)
	return inputsDigest, depsDigest
}

// applyResult applies a finished task's ConfiguratorResult onto its target
// instance, exactly per spec §4.5.
func (r *Runner) applyResult(tk *task.Task) {
	if tk.Target == nil {
		return
	}
	result := tk.Result()

	if result.Modified {
		tk.Target.LastStateChange = string(tk.ChangeID)
	}

	if result.Applied {
		readyState := result.ReadyState
		if !readyState.Operational() && readyState != instance.StatusError {
			logging.Warn("Runner", "%s: configurator reported applied=true with readyState=%s, outside operational ∪ {error}; forcing error", dedupeKey(tk.Request), readyState)
			readyState = instance.StatusError
		}
		tk.Target.SetLocalStatus(readyState)
	} else if result.ReadyState == instance.StatusNotApplied && tk.AttrManager != nil {
		tk.AttrManager.Revert()
	}

	if tk.Changed() {
		tk.Target.LastConfigChange = string(tk.ChangeID)
	}

	for key, value := range result.Outputs {
		tk.Target.SetAttribute(key, value)
	}
}
