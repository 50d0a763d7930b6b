// Package digest computes stable hashes over evaluated operation inputs
// and compares them against prior ChangeRecords to drive the planner's
// change-detection booleans (specChanged/inputsChanged/dependenciesChanged/
// statusDrift). These booleans are the only inputs to planning decisions;
// the planner never diffs raw nested structures directly.
package digest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ComputeInputsDigest hashes the evaluated input map after applying the
// configurator's exclude list (e.g. cwd, dryrun, resultTemplate — values
// that vary run to run without representing a meaningful spec change).
// The hash is stable across map iteration order. Scalars are hashed together
// with their Go type, so the same number held as an int and as a float64
// (or as a string) yields a different digest.
func ComputeInputsDigest(inputs map[string]any, exclude []string) string {
	excluded := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		excluded[k] = true
	}

	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		if excluded[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		canonicalize(&b, inputs[k])
		b.WriteByte(';')
	}

	sum := xxhash.Sum64String(b.String())
	return strconv.FormatUint(sum, 16)
}

// canonicalize writes a deterministic textual form of v: map keys sorted,
// slices in order, scalars as their %v form followed by their Go type in
// parentheses. It does not attempt to be valid
// JSON, only stable and collision-resistant for the values configurators
// pass as inputs (strings, numbers, bools, nested maps/slices).
func canonicalize(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for _, k := range keys {
			b.WriteString(k)
			b.WriteByte(':')
			canonicalize(b, val[k])
			b.WriteByte(',')
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for _, item := range val {
			canonicalize(b, item)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "%v(%T)", val, val)
	}
}

// Record is the subset of a ChangeRecord the detector needs to compare
// against a freshly evaluated candidate.
type Record struct {
	InputsDigest       string
	DependenciesDigest string
	SpecVersion        string
	ExpectedStatus     string
	ObservedStatus     string
}

// Candidate is the freshly evaluated state of an operation about to be
// (re)considered by the planner.
type Candidate struct {
	SpecVersion        string
	InputsDigest       string
	DependenciesDigest string
	ExpectedStatus     string
	ObservedStatus     string
}

// ChangeSet is the only input the planner's decision table consults.
type ChangeSet struct {
	SpecChanged         bool
	InputsChanged       bool
	DependenciesChanged bool
	StatusDrift         bool
}

// Detect compares a candidate's evaluated state against the last successful
// record for the same (target, operation). A nil prior record means this is
// the first time the operation is being considered: everything reads as
// changed so the planner's "no existing" path takes over.
func Detect(candidate Candidate, prior *Record) ChangeSet {
	if prior == nil {
		return ChangeSet{
			SpecChanged:         true,
			InputsChanged:       true,
			DependenciesChanged: true,
			StatusDrift:         candidate.ObservedStatus != candidate.ExpectedStatus,
		}
	}
	return ChangeSet{
		SpecChanged:         candidate.SpecVersion != prior.SpecVersion,
		InputsChanged:       candidate.InputsDigest != prior.InputsDigest,
		DependenciesChanged: candidate.DependenciesDigest != prior.DependenciesDigest,
		StatusDrift:         candidate.ObservedStatus != candidate.ExpectedStatus,
	}
}

// MajorVersionBump reports whether a version string's major component
// changed, used by the planner to distinguish "upgrade" from plain "update".
// Only the component before the first dot is compared. An empty version on
// either side counts as a major bump whenever the two strings differ
// (conservative: prefer the upgrade gate).
func MajorVersionBump(oldVersion, newVersion string) bool {
	oldMajor, oldOK := majorComponent(oldVersion)
	newMajor, newOK := majorComponent(newVersion)
	if !oldOK || !newOK {
		return oldVersion != newVersion
	}
	return oldMajor != newMajor
}

func majorComponent(version string) (string, bool) {
	if version == "" {
		return "", false
	}
	parts := strings.SplitN(version, ".", 2)
	return parts[0], true
}
