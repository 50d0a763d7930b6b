package planner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-ensemble/internal/digest"
	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/planner"
	"github.com/giantswarm/muster-ensemble/internal/topology"
)

type memRecords struct {
	byKey map[string]*digest.Record
}

func newMemRecords() *memRecords { return &memRecords{byKey: map[string]*digest.Record{}} }

func (m *memRecords) LastRecord(target, operation string) (*digest.Record, bool) {
	r, ok := m.byKey[target+"/"+operation]
	return r, ok
}

func (m *memRecords) put(target, operation string, r *digest.Record) {
	m.byKey[target+"/"+operation] = r
}

func webTemplate() *topology.Template {
	return &topology.Template{
		Name: "web",
		Type: "Service",
		Operations: map[string]topology.OperationSpec{
			"Standard.create": {Interface: "Standard", Operation: "create", Implementation: "shell", Inputs: map[string]any{"command": "echo create"}, Version: "1.0.0", Timeout: 30 * time.Second},
			"Standard.update": {Interface: "Standard", Operation: "update", Implementation: "shell", Inputs: map[string]any{"command": "echo update"}, Version: "1.0.0"},
			"Standard.delete": {Interface: "Standard", Operation: "delete", Implementation: "shell", Inputs: map[string]any{"command": "echo delete"}},
		},
	}
}

func newTopology(templates ...*topology.Template) *topology.Topology {
	topo := &topology.Topology{Templates: map[string]*topology.Template{}}
	for _, tmpl := range templates {
		topo.Templates[tmpl.Name] = tmpl
	}
	return topo
}

func TestPlan_NoExistingInstance_AddEmitsCreate(t *testing.T) {
	tmpl := webTemplate()
	topo := newTopology(tmpl)
	g := instance.NewGraph(nil)

	requests, errs := planner.Plan(g, topo, planner.JobOptions{Add: true}, nil, nil)
	require.Empty(t, errs)
	require.Len(t, requests, 1)
	assert.Equal(t, "create", requests[0].ConfigSpec.Operation)
	assert.Equal(t, "add", requests[0].Reason)
	assert.True(t, requests[0].Required)
}

func TestPlan_NoExistingInstance_WithoutAddEmitsNothing(t *testing.T) {
	tmpl := webTemplate()
	topo := newTopology(tmpl)
	g := instance.NewGraph(nil)

	requests, errs := planner.Plan(g, topo, planner.JobOptions{}, nil, nil)
	require.Empty(t, errs)
	assert.Empty(t, requests)
}

func TestPlan_SpecChanged_UpdateEmitsReconfigure(t *testing.T) {
	tmpl := webTemplate()
	topo := newTopology(tmpl)
	existing := instance.NewInstance("web", tmpl)
	existing.SetLocalStatus(instance.StatusOK)
	g := instance.NewGraph(existing)

	records := newMemRecords()
	records.put("web", "Standard.update", &digest.Record{SpecVersion: "0.9.0", InputsDigest: "stale"})

	requests, errs := planner.Plan(g, topo, planner.JobOptions{Update: true}, records, nil)
	require.Empty(t, errs)
	require.Len(t, requests, 1)
	assert.Equal(t, "update", requests[0].ConfigSpec.Operation)
}

func TestPlan_NoChange_EmitsNothing(t *testing.T) {
	tmpl := webTemplate()
	topo := newTopology(tmpl)
	existing := instance.NewInstance("web", tmpl)
	existing.SetLocalStatus(instance.StatusOK)
	g := instance.NewGraph(existing)

	opSpec := tmpl.Operations["Standard.update"]
	inputsDigest := digest.ComputeInputsDigest(opSpec.Inputs, nil)
	depsDigest := digest.ComputeInputsDigest(map[string]any{}, nil)

	records := newMemRecords()
	records.put("web", "Standard.update", &digest.Record{
		SpecVersion:        opSpec.Version,
		InputsDigest:       inputsDigest,
		DependenciesDigest: depsDigest,
		ExpectedStatus:     instance.StatusOK.String(),
		ObservedStatus:     instance.StatusOK.String(),
	})

	requests, errs := planner.Plan(g, topo, planner.JobOptions{Update: true}, records, nil)
	require.Empty(t, errs)
	assert.Empty(t, requests)
}

func TestPlan_RepairError_EmitsRepairOnlyWhenRequested(t *testing.T) {
	tmpl := webTemplate()
	topo := newTopology(tmpl)
	existing := instance.NewInstance("web", tmpl)
	existing.SetLocalStatus(instance.StatusError)
	g := instance.NewGraph(existing)

	opSpec := tmpl.Operations["Standard.update"]
	inputsDigest := digest.ComputeInputsDigest(opSpec.Inputs, nil)
	depsDigest := digest.ComputeInputsDigest(map[string]any{}, nil)
	records := newMemRecords()
	records.put("web", "Standard.update", &digest.Record{
		SpecVersion: opSpec.Version, InputsDigest: inputsDigest, DependenciesDigest: depsDigest,
		ExpectedStatus: instance.StatusOK.String(), ObservedStatus: instance.StatusError.String(),
	})

	requests, errs := planner.Plan(g, topo, planner.JobOptions{Repair: ""}, records, nil)
	require.Empty(t, errs)
	assert.Empty(t, requests, "no repair flag means no repair task")

	requests, errs = planner.Plan(g, topo, planner.JobOptions{Repair: "error"}, records, nil)
	require.Empty(t, errs)
	require.Len(t, requests, 1)
	assert.Equal(t, "repair", requests[0].ConfigSpec.Action)
}

func TestPlan_RepairDegraded_DoesNotFireOnErrorThreshold(t *testing.T) {
	tmpl := webTemplate()
	topo := newTopology(tmpl)
	existing := instance.NewInstance("web", tmpl)
	existing.SetLocalStatus(instance.StatusDegraded)
	g := instance.NewGraph(existing)

	opSpec := tmpl.Operations["Standard.update"]
	inputsDigest := digest.ComputeInputsDigest(opSpec.Inputs, nil)
	depsDigest := digest.ComputeInputsDigest(map[string]any{}, nil)
	records := newMemRecords()
	records.put("web", "Standard.update", &digest.Record{
		SpecVersion: opSpec.Version, InputsDigest: inputsDigest, DependenciesDigest: depsDigest,
		ExpectedStatus: instance.StatusOK.String(), ObservedStatus: instance.StatusDegraded.String(),
	})

	requests, _ := planner.Plan(g, topo, planner.JobOptions{Repair: "error"}, records, nil)
	assert.Empty(t, requests, "repair=error should not repair a merely degraded node")

	requests, _ = planner.Plan(g, topo, planner.JobOptions{Repair: "degraded"}, records, nil)
	require.Len(t, requests, 1)
}

func TestPlan_RevertObsolete_DeletesUndeclaredEngineCreatedInstance(t *testing.T) {
	tmpl := webTemplate()
	topo := newTopology() // no templates at all: "web" is obsolete
	existing := instance.NewInstance("web", tmpl)
	existing.Created = instance.Created{ByEngine: true}
	g := instance.NewGraph(existing)

	requests, errs := planner.Plan(g, topo, planner.JobOptions{RevertObsolete: true}, nil, nil)
	require.Empty(t, errs)
	require.Len(t, requests, 1)
	assert.Equal(t, "delete", requests[0].ConfigSpec.Operation)
}

func TestPlan_RevertObsolete_NilTemplateReportsPlanErrorInsteadOfPanicking(t *testing.T) {
	topo := newTopology() // no templates at all: "web" is obsolete
	existing := instance.NewInstance("web", nil)
	existing.Created = instance.Created{ByEngine: true}
	g := instance.NewGraph(existing)

	requests, errs := planner.Plan(g, topo, planner.JobOptions{RevertObsolete: true}, nil, nil)
	assert.Empty(t, requests)
	require.Len(t, errs, 1)
}

func TestPlan_RevertObsolete_NeverDeletesSelectedInstance(t *testing.T) {
	tmpl := webTemplate()
	topo := newTopology()
	existing := instance.NewInstance("web", tmpl)
	existing.Created = instance.Created{ByEngine: false}
	g := instance.NewGraph(existing)

	requests, _ := planner.Plan(g, topo, planner.JobOptions{RevertObsolete: true}, nil, nil)
	assert.Empty(t, requests)
}

func TestPlan_SelectDirectiveWithoutBoundInstanceErrors(t *testing.T) {
	tmpl := webTemplate()
	tmpl.Directives = []topology.Directive{topology.DirectiveSelect}
	topo := newTopology(tmpl)
	g := instance.NewGraph(nil)

	requests, errs := planner.Plan(g, topo, planner.JobOptions{Add: true}, nil, nil)
	assert.Empty(t, requests)
	require.Len(t, errs, 1)
}

func TestPlan_ReadonlyFilterDropsMutatingOperations(t *testing.T) {
	tmpl := webTemplate()
	topo := newTopology(tmpl)
	g := instance.NewGraph(nil)

	requests, _ := planner.Plan(g, topo, planner.JobOptions{Add: true, Readonly: true}, nil, nil)
	assert.Empty(t, requests, "create is mutating, readonly must drop it")
}

func TestPlan_ResourceFilterScopesToNamedTarget(t *testing.T) {
	web := webTemplate()
	other := webTemplate()
	other.Name = "db"
	topo := newTopology(web, other)
	g := instance.NewGraph(nil)

	requests, _ := planner.Plan(g, topo, planner.JobOptions{Add: true, Resource: "db"}, nil, nil)
	require.Len(t, requests, 1)
	assert.Equal(t, "db", requests[0].Target.Name)
}

func TestPlan_DiscoverBeforeDeploy_EmitsCheckWhenStatusUnknown(t *testing.T) {
	tmpl := webTemplate()
	tmpl.Operations["Install.check"] = topology.OperationSpec{Interface: "Install", Operation: "check", Implementation: "shell", Inputs: map[string]any{"command": "echo check"}}
	topo := newTopology(tmpl)
	existing := instance.NewInstance("web", tmpl)
	existing.SetLocalStatus(instance.StatusUnknown)
	g := instance.NewGraph(existing)

	requests, errs := planner.Plan(g, topo, planner.JobOptions{Update: true}, nil, nil)
	require.Empty(t, errs)
	require.Len(t, requests, 1)
	assert.Equal(t, "check", requests[0].ConfigSpec.Operation)
	assert.Equal(t, "discover-before-deploy", requests[0].Reason)
}
