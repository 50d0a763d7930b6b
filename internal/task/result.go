package task

import "github.com/giantswarm/muster-ensemble/internal/instance"

// ConfiguratorResult is the terminal value a configurator's producer
// yields, and drives the result-application rules of spec §4.5.
type ConfiguratorResult struct {
	Success bool
	// Modified: a "physical" change to the managed system was made.
	Modified bool
	// Applied: this configurator is the active owner of the target's
	// configuration (readyState is authoritative).
	Applied bool
	// ReadyState is the resulting instance.Status when Applied is true, or
	// the status to force onto the instance even when Applied is false
	// (e.g. to mark it errored) unless it is StatusNotApplied.
	ReadyState instance.Status
	// ConfigChanged, when non-nil, overrides the runner's own change
	// deduction (§4.5 "defaults to true unless the runner can prove
	// otherwise").
	ConfigChanged *bool
	Result        string
	Outputs       map[string]any
	Messages      []string
	Reason        string // set on skip/error for diagnostics
}

// Skipped builds the canned ConfiguratorResult used for every gating
// failure path in the runner (§4.4 step 4): not applied, not modified, and
// carrying the reason for the job summary.
func Skipped(reason string) ConfiguratorResult {
	return ConfiguratorResult{
		Success:    true,
		Applied:    false,
		Modified:   false,
		ReadyState: instance.StatusNotApplied,
		Reason:     reason,
	}
}

// Errored builds the canned ConfiguratorResult for runtime exceptions
// inside a configurator's run (§7 kind 4): the pessimistic assumption is
// that side effects occurred, so Modified is true even though Success is
// false.
func Errored(reason string) ConfiguratorResult {
	return ConfiguratorResult{
		Success:    false,
		Applied:    true,
		Modified:   true,
		ReadyState: instance.StatusError,
		Reason:     reason,
	}
}
