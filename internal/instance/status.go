// Package instance implements the operational model and live instance graph:
// the runtime counterpart of topology templates, their Status/Priority
// aggregation algebra, and the lifecycle state machine.
package instance

import "fmt"

// Status is the operational state of an Operational entity. Ordering matters:
// values compare with the usual integer operators and ok/degraded are the
// only two "operational" states.
type Status int

const (
	StatusOK Status = iota
	StatusDegraded
	StatusError
	StatusPending
	StatusNotApplied
	StatusAbsent
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusError:
		return "error"
	case StatusPending:
		return "pending"
	case StatusNotApplied:
		return "notapplied"
	case StatusAbsent:
		return "absent"
	case StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Operational reports true for the only two statuses considered "up":
// ok and degraded.
func (s Status) Operational() bool {
	return s == StatusOK || s == StatusDegraded
}

// ParseStatus parses the lowercase string form produced by String().
func ParseStatus(s string) (Status, error) {
	switch s {
	case "ok":
		return StatusOK, nil
	case "degraded":
		return StatusDegraded, nil
	case "error":
		return StatusError, nil
	case "pending":
		return StatusPending, nil
	case "notapplied":
		return StatusNotApplied, nil
	case "absent":
		return StatusAbsent, nil
	case "unknown":
		return StatusUnknown, nil
	default:
		return StatusUnknown, fmt.Errorf("instance: unknown status %q", s)
	}
}

// Priority governs how a dependency's non-operational state affects the
// aggregate status of whatever depends on it.
type Priority int

const (
	PriorityIgnore Priority = iota
	PriorityOptional
	PriorityRequired
)

func (p Priority) String() string {
	switch p {
	case PriorityIgnore:
		return "ignore"
	case PriorityOptional:
		return "optional"
	case PriorityRequired:
		return "required"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Required reports whether the dependency must be operational for the
// subject to be non-error.
func (p Priority) Required() bool {
	return p == PriorityRequired
}

// ParsePriority parses the lowercase string form produced by String().
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "ignore":
		return PriorityIgnore, nil
	case "optional":
		return PriorityOptional, nil
	case "required":
		return PriorityRequired, nil
	default:
		return PriorityOptional, fmt.Errorf("instance: unknown priority %q", s)
	}
}
