package manifest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/manifest"
	"github.com/giantswarm/muster-ensemble/internal/topology"
)

func TestSnapshotGraph_WritesInstanceRecords(t *testing.T) {
	webTmpl := &topology.Template{Name: "web", Capabilities: []topology.Capability{{Name: "endpoint"}}}
	dbTmpl := &topology.Template{Name: "db"}

	web := instance.NewInstance("web", webTmpl)
	web.Capabilities = []string{"endpoint"}
	web.SetLocalStatus(instance.StatusOK)
	web.SetAttribute("host", "10.0.0.1")

	db := instance.NewInstance("db", dbTmpl)
	require.NoError(t, web.AddRequirement(&instance.Relationship{Name: "backing-store", Target: db, TargetCapability: ""}))
	_ = db

	g := instance.NewGraph(web)
	require.NoError(t, g.Add(db))

	doc, err := manifest.Parse([]byte(baseDoc))
	require.NoError(t, err)
	doc.SnapshotGraph(g)

	rec, ok := doc.Status.Topology.Instances["web"]
	require.True(t, ok)
	assert.Equal(t, "web", rec.Template)
	assert.Equal(t, "ok", rec.ReadyState.Local)
	assert.Equal(t, "10.0.0.1", rec.Attributes["host"])
	assert.True(t, rec.Capabilities["endpoint"])
	assert.Equal(t, "db", rec.Requirements["backing-store"])

	_, dbRecorded := doc.Status.Topology.Instances["db"]
	assert.True(t, dbRecorded)
}

func TestBuildGraph_RoundTripsSnapshotGraph(t *testing.T) {
	webTmpl := &topology.Template{Name: "web", Capabilities: []topology.Capability{{Name: "endpoint"}}}
	dbTmpl := &topology.Template{Name: "db"}

	web := instance.NewInstance("web", webTmpl)
	web.Capabilities = []string{"endpoint"}
	web.SetLocalStatus(instance.StatusOK)
	web.SetPriority(instance.PriorityRequired)
	web.SetAttribute("host", "10.0.0.1")
	web.Created = instance.Created{ByEngine: true}

	db := instance.NewInstance("db", dbTmpl)
	db.Created = instance.Created{ByTaskID: "task-1"}
	require.NoError(t, web.AddRequirement(&instance.Relationship{Name: "backing-store", Target: db}))

	g := instance.NewGraph(web)
	require.NoError(t, g.Add(db))

	doc, err := manifest.Parse([]byte(baseDoc))
	require.NoError(t, err)
	doc.SnapshotGraph(g)

	topo := &topology.Topology{Templates: map[string]*topology.Template{"web": webTmpl, "db": dbTmpl}}
	rebuilt, err := doc.BuildGraph(topo)
	require.NoError(t, err)

	rebuiltWeb, ok := rebuilt.Get("web")
	require.True(t, ok)
	assert.Equal(t, "web", rebuiltWeb.Template.Name)
	assert.Equal(t, instance.StatusOK, rebuiltWeb.LocalStatus())
	assert.Equal(t, instance.PriorityRequired, rebuiltWeb.Priority())
	assert.Equal(t, "10.0.0.1", rebuiltWeb.Attributes["host"])
	assert.True(t, rebuiltWeb.Created.ByEngine)
	require.Len(t, rebuiltWeb.Requirements, 1)
	assert.Equal(t, "db", rebuiltWeb.Requirements[0].Target.Name)

	rebuiltDB, ok := rebuilt.Get("db")
	require.True(t, ok)
	assert.Equal(t, "task-1", rebuiltDB.Created.ByTaskID)
	assert.False(t, rebuiltDB.Created.ByEngine)
}
