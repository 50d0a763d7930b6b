// Package configurator defines the capability contract every pluggable
// actor implements (spec.md §4.6) and the process-startup registry that
// maps short implementation names to constructors.
package configurator

import (
	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/task"
)

// Step is one value yielded by a Producer: exactly one of its fields is
// set. A Step with none of the three fields set, or more than one, is a
// protocol error and the owning task finishes as StatusError (§4.4 step 6).
type Step struct {
	TaskRequest        *task.TaskRequest
	JobRequest         *task.JobRequest
	ConfiguratorResult *task.ConfiguratorResult
}

// Kind classifies a Step for callers that want to switch on it without
// nil-checking three pointers.
type Kind int

const (
	KindInvalid Kind = iota
	KindTaskRequest
	KindJobRequest
	KindTerminal
)

// Kind reports which field of the Step is populated.
func (s Step) Kind() Kind {
	set := 0
	k := KindInvalid
	if s.TaskRequest != nil {
		set++
		k = KindTaskRequest
	}
	if s.JobRequest != nil {
		set++
		k = KindJobRequest
	}
	if s.ConfiguratorResult != nil {
		set++
		k = KindTerminal
	}
	if set != 1 {
		return KindInvalid
	}
	return k
}

// Producer is the cooperative, resumable execution of a configurator's
// `run` method (spec §4.4 step 6, design note "cooperative producer
// pattern"). Next is called repeatedly: the first call passes a nil
// resumeValue; subsequent calls pass the result of the sub-request the
// previous Step asked for (a *task.ConfiguratorResult for a yielded
// TaskRequest, or a *task.JobRequest's aggregate result for a yielded
// JobRequest). The producer suspends exactly at each yield; there is no
// preemption (spec §5).
type Producer interface {
	Next(resumeValue any) (Step, error)
}

// Configurator is the uniform capability contract every plugin exposes
// (spec.md §4.6).
type Configurator interface {
	// CanDryRun reports whether this configurator supports dry-run mode for
	// the given task. When false and the job runs with dryRun, the runner
	// reports the task as "skipped (dry-run unsupported)".
	CanDryRun(t *task.Task) bool

	// CanRun reports whether the task may proceed; a non-empty reason means
	// no and the task finishes as skipped with that reason.
	CanRun(t *task.Task) (ok bool, reason string)

	// ShouldRun may downgrade the task's priority to PriorityIgnore,
	// turning it into a logged no-op rather than a refusal.
	ShouldRun(t *task.Task) instance.Priority

	// Render performs pure preparation (no side effects); its result is
	// stashed on the task as Rendered before Run is called.
	Render(t *task.Task) (any, error)

	// Run begins the cooperative execution and returns the Producer that
	// yields its Steps; the first Step comes from the Producer's first Next.
	Run(t *task.Task) (Producer, error)
}

// Registry maps short implementation names to Configurator constructors.
// Plugins register under their short name at process startup, the same
// pattern the teacher uses for its mcpserver.NewService factory keyed by
// server type.
type Registry struct {
	factories map[string]func() Configurator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Configurator)}
}

// Register adds a constructor under a short name, overwriting any previous
// registration (later registrations win, matching the teacher's plugin
// registration idiom).
func (r *Registry) Register(name string, factory func() Configurator) {
	r.factories[name] = factory
}

// New instantiates the configurator registered under name. The name may be
// a short registry key or (per spec §6, "Configurator implementation
// reference") a fully-qualified identifier understood by a specific
// factory; resolution beyond the short-name registry (node-template-backed
// configurators) is the runner's responsibility, not the registry's.
func (r *Registry) New(name string) (Configurator, bool) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Names lists every registered short name, sorted is left to callers that
// want a stable order for diagnostics.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}
