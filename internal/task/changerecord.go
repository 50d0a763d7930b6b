package task

import "time"

// ChangeRecord is the immutable audit entry for one executed task
// (spec.md §3, "ChangeRecord"). ChangeRecords are append-only: the runner
// never edits a committed record, only appends new ones.
type ChangeRecord struct {
	ChangeID           ChangeID
	ParentID           ChangeID
	StartTime          time.Time
	CommitID           string // set once the owning job's state document is committed
	Action             string // deploy/undeploy/check/discover/stop/run
	Target             string // instance name
	Operation          string // "interface.operation"
	InputsDigest       string
	DependenciesDigest string
	SpecVersion        string
	Result             string // ok/degraded/error/pending/notapplied/absent/unknown/skipped
	ResourceChanges    map[string]any
	Reason             string
	Messages           []string
}
