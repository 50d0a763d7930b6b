package task

import "fmt"

// ChangeID is a monotonically assigned, lexicographically sortable token
// carrying the job ordinal and task ordinal (spec.md §3, "ChangeRecord").
// Zero-padding both components keeps string comparison equivalent to
// numeric comparison up to 999999 jobs / 999999 tasks per job, which is
// far beyond any single run's scale.
type ChangeID string

// NewChangeID formats a ChangeID from a job ordinal and a task ordinal.
func NewChangeID(jobOrdinal, taskOrdinal int) ChangeID {
	return ChangeID(fmt.Sprintf("%06d:%06d", jobOrdinal, taskOrdinal))
}

// Less reports strict lexicographic ordering, equivalent to the
// monotonicity invariant required by spec §8 ("for any two tasks a
// preceding b within a job, a.changeId < b.changeId").
func (c ChangeID) Less(other ChangeID) bool {
	return string(c) < string(other)
}
