// Package instance holds the live instance graph and the Status/Priority
// operational algebra shared by instances, tasks and jobs.
//
// The aggregation rule folds dependency statuses into a subject's own
// locally declared status: a required dependency that isn't operational
// forces the subject to StatusError; an optional dependency that isn't
// operational merely downgrades the subject to StatusDegraded; PriorityIgnore
// dependencies never contribute. See AggregateStatus for the exact rule.
package instance
