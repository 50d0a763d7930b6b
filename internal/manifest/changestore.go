package manifest

import (
	"github.com/giantswarm/muster-ensemble/internal/digest"
	"github.com/giantswarm/muster-ensemble/internal/task"
)

// ChangeStore adapts a Document's append-only Changes log into the
// planner.RecordStore interface, letting the planner's change-detection
// booleans (spec §4.2) read from whatever was last persisted rather than
// from in-memory state that resets every process run.
type ChangeStore struct {
	doc *Document
}

// NewChangeStore wraps doc. The store always reflects doc's current
// Changes slice, including records appended after the store was built.
func NewChangeStore(doc *Document) *ChangeStore {
	return &ChangeStore{doc: doc}
}

// LastRecord returns the most recent ChangeRecord for (target, operation)
// whose Result denotes a completed (non-skipped) run, converted into the
// digest.Record shape the planner compares candidates against.
func (s *ChangeStore) LastRecord(target, operation string) (*digest.Record, bool) {
	var last *task.ChangeRecord
	for i := range s.doc.Changes {
		rec := &s.doc.Changes[i]
		if rec.Target != target || rec.Operation != operation {
			continue
		}
		if rec.Result == "skipped" {
			continue
		}
		if last == nil || last.ChangeID.Less(rec.ChangeID) {
			last = rec
		}
	}
	if last == nil {
		return nil, false
	}
	return &digest.Record{
		InputsDigest:       last.InputsDigest,
		DependenciesDigest: last.DependenciesDigest,
		SpecVersion:        last.SpecVersion,
		ExpectedStatus:     "ok",
		ObservedStatus:     last.Result,
	}, true
}
