package digest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/giantswarm/muster-ensemble/internal/digest"
)

func TestComputeInputsDigest_StableAcrossMapOrder(t *testing.T) {
	a := map[string]any{"name": "web", "replicas": 3, "env": map[string]any{"A": "1", "B": "2"}}
	b := map[string]any{"env": map[string]any{"B": "2", "A": "1"}, "replicas": 3, "name": "web"}
	assert.Equal(t, digest.ComputeInputsDigest(a, nil), digest.ComputeInputsDigest(b, nil))
}

func TestComputeInputsDigest_ExcludeListIgnoresNoise(t *testing.T) {
	a := map[string]any{"name": "web", "cwd": "/tmp/a"}
	b := map[string]any{"name": "web", "cwd": "/tmp/b"}
	assert.Equal(t,
		digest.ComputeInputsDigest(a, []string{"cwd"}),
		digest.ComputeInputsDigest(b, []string{"cwd"}))
	assert.NotEqual(t,
		digest.ComputeInputsDigest(a, nil),
		digest.ComputeInputsDigest(b, nil))
}

func TestComputeInputsDigest_DifferentValuesDiffer(t *testing.T) {
	a := map[string]any{"replicas": 3}
	b := map[string]any{"replicas": 4}
	assert.NotEqual(t, digest.ComputeInputsDigest(a, nil), digest.ComputeInputsDigest(b, nil))
}

func TestDetect_NilPriorMeansEverythingChanged(t *testing.T) {
	cs := digest.Detect(digest.Candidate{SpecVersion: "1.0", InputsDigest: "x"}, nil)
	assert.True(t, cs.SpecChanged)
	assert.True(t, cs.InputsChanged)
	assert.True(t, cs.DependenciesChanged)
}

func TestDetect_DigestFidelity(t *testing.T) {
	prior := &digest.Record{InputsDigest: "abc", SpecVersion: "1.0", DependenciesDigest: "dep1"}
	same := digest.Detect(digest.Candidate{InputsDigest: "abc", SpecVersion: "1.0", DependenciesDigest: "dep1"}, prior)
	assert.False(t, same.InputsChanged)
	assert.False(t, same.SpecChanged)
	assert.False(t, same.DependenciesChanged)

	changed := digest.Detect(digest.Candidate{InputsDigest: "xyz", SpecVersion: "1.0", DependenciesDigest: "dep1"}, prior)
	assert.True(t, changed.InputsChanged)
}

func TestDetect_StatusDrift(t *testing.T) {
	prior := &digest.Record{ExpectedStatus: "ok"}
	cs := digest.Detect(digest.Candidate{ExpectedStatus: "ok", ObservedStatus: "error"}, prior)
	assert.True(t, cs.StatusDrift)
}

func TestMajorVersionBump(t *testing.T) {
	assert.True(t, digest.MajorVersionBump("1.2.3", "2.0.0"))
	assert.False(t, digest.MajorVersionBump("1.2.3", "1.9.0"))
	assert.True(t, digest.MajorVersionBump("", "1.0.0"))
}
