package topology_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/muster-ensemble/internal/topology"
)

const serviceTemplateYAML = `
required_inputs: ["region"]
node_templates:
  web:
    type: Compute
    directives: ["discover"]
    capabilities:
      - name: endpoint
        type: Endpoint
    requirements:
      - name: db
        target: db
        priority: required
    interfaces:
      Standard:
        create:
          implementation: shell
          version: "1.2.0"
          timeoutSeconds: 30
          inputs:
            cmd: "deploy.sh"
  db:
    type: Database
    capabilities:
      - name: endpoint
        type: Endpoint
    interfaces:
      Standard:
        create:
          implementation: shell
          inputs:
            cmd: "deploy-db.sh"
`

func parseServiceTemplate(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(raw), &m))
	return m
}

func TestLoad_BuildsTemplatesWithOperationsAndRequirements(t *testing.T) {
	st := parseServiceTemplate(t, serviceTemplateYAML)
	topo, err := topology.Load(st, map[string]any{"region": "us-east-1"})
	require.NoError(t, err)

	require.Contains(t, topo.Templates, "web")
	web := topo.Templates["web"]
	assert.Equal(t, "Compute", web.Type)
	assert.True(t, web.HasDirective(topology.DirectiveDiscover))
	require.Len(t, web.Requirements, 1)
	assert.Equal(t, "db", web.Requirements[0].TargetNodeName)
	assert.Equal(t, "required", web.Requirements[0].Priority)

	createSpec, ok := web.Operation("Standard", "create")
	require.True(t, ok)
	assert.Equal(t, "shell", createSpec.Implementation)
	assert.Equal(t, "1.2.0", createSpec.Version)
	assert.Equal(t, 30*time.Second, createSpec.Timeout)
	assert.Equal(t, "deploy.sh", createSpec.Inputs["cmd"])

	assert.Equal(t, []string{"region"}, topo.RequiredInputs)
}

func TestLoad_ValidateFailsWithoutRequiredInputBinding(t *testing.T) {
	st := parseServiceTemplate(t, serviceTemplateYAML)
	topo, err := topology.Load(st, map[string]any{})
	require.NoError(t, err)

	err = topo.Validate()
	require.Error(t, err)
	var verr *topology.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "inputs.region", verr.Field)
}

func TestLoad_MissingTypeErrors(t *testing.T) {
	st := parseServiceTemplate(t, `
node_templates:
  broken:
    capabilities: []
`)
	_, err := topology.Load(st, nil)
	assert.Error(t, err)
}
