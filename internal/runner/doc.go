package runner

// Non-goals carried forward from spec.md: the runner does not itself
// persist ChangeRecords to a state file (that belongs to internal/manifest)
// and does not schedule jobs across processes — a single job is always run
// to completion by one Runner on one goroutine (spec §5).
