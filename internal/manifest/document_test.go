package manifest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-ensemble/internal/manifest"
	"github.com/giantswarm/muster-ensemble/internal/task"
	"github.com/giantswarm/muster-ensemble/pkg/vault"
)

const baseDoc = `
apiVersion: ensemble/v1
kind: Manifest
spec:
  service_template:
    node_templates:
      web:
        type: Compute
environment:
  inputs:
    region: us-east-1
status:
  topology:
    instances: {}
`

func TestParse_RoundTripsWithoutIncludes(t *testing.T) {
	doc, err := manifest.Parse([]byte(baseDoc))
	require.NoError(t, err)
	assert.Equal(t, "ensemble/v1", doc.APIVersion)
	assert.Equal(t, "Manifest", doc.Kind)
	assert.Equal(t, "us-east-1", doc.Environment.Inputs["region"])

	out, err := doc.Save()
	require.NoError(t, err)
	reparsed, err := manifest.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "ensemble/v1", reparsed.APIVersion)
}

func TestParse_ResolvesIncludeDirective(t *testing.T) {
	data := `
apiVersion: ensemble/v1
kind: Manifest
defaults:
  retries: 3
  timeout: 30
spec:
  service_template:
    node_templates:
      web:
        "+defaults": defaults
        type: Compute
`
	doc, err := manifest.Parse([]byte(data))
	require.NoError(t, err)

	nodeTemplates, ok := doc.Spec.ServiceTemplate["node_templates"].(map[string]any)
	require.True(t, ok)
	web, ok := nodeTemplates["web"].(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "Compute", web["type"])
	assert.Equal(t, 3, web["retries"])
	assert.Equal(t, 30, web["timeout"])
	_, hasDirectiveKey := web["+defaults"]
	assert.False(t, hasDirectiveKey, "the include directive key itself must not survive expansion")
}

func TestParse_QuoteEscapePreservesLiteralPlusKey(t *testing.T) {
	data := `
apiVersion: ensemble/v1
kind: Manifest
spec:
  service_template:
    node_templates:
      web:
        "q+1": "a literal +1 key, not an include"
`
	doc, err := manifest.Parse([]byte(data))
	require.NoError(t, err)

	nodeTemplates := doc.Spec.ServiceTemplate["node_templates"].(map[string]any)
	web := nodeTemplates["web"].(map[string]any)
	assert.Equal(t, "a literal +1 key, not an include", web["+1"])
}

func TestParse_ReplaceMergeStrategyOverwritesKeys(t *testing.T) {
	data := `
apiVersion: ensemble/v1
kind: Manifest
base:
  "+%": replace
  name: base-name
  shared: base-shared
spec:
  service_template:
    node_templates:
      web:
        "+base": base
        name: web-name
`
	doc, err := manifest.Parse([]byte(data))
	require.NoError(t, err)
	web := doc.Spec.ServiceTemplate["node_templates"].(map[string]any)["web"].(map[string]any)

	// plain keys are resolved before includes are merged, and "replace"
	// lets the include clobber them.
	assert.Equal(t, "base-name", web["name"])
	assert.Equal(t, "base-shared", web["shared"])
}

func TestParse_UnresolvableIncludePathErrors(t *testing.T) {
	data := `
apiVersion: ensemble/v1
kind: Manifest
spec:
  service_template:
    node_templates:
      web:
        "+missing": does.not.exist
`
	_, err := manifest.Parse([]byte(data))
	assert.Error(t, err)
}

func TestSave_RedactsTaintedResourceChanges(t *testing.T) {
	doc, err := manifest.Parse([]byte(baseDoc))
	require.NoError(t, err)

	doc.AppendChangeRecords(task.ChangeRecord{
		ChangeID:        "000001:000001",
		Target:          "web",
		Operation:       "Standard.create",
		Result:          "ok",
		ResourceChanges: map[string]any{"password": vault.Tainted{Value: "hunter2"}, "host": "example.com"},
	})

	out, err := doc.Save()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), "REDACTED")
	assert.Contains(t, string(out), "example.com")
}

func TestSave_PreservesIncludeSiteOnRoundTrip(t *testing.T) {
	data := `
apiVersion: ensemble/v1
kind: Manifest
defaults:
  timeout: 30
spec:
  service_template:
    node_templates:
      web:
        "+defaults": defaults
        type: Compute
`
	doc, err := manifest.Parse([]byte(data))
	require.NoError(t, err)

	out, err := doc.Save()
	require.NoError(t, err)
	assert.Contains(t, string(out), "+defaults", "Save must re-serialize the raw tree, not the expanded one")
}
