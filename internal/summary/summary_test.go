package summary_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-ensemble/internal/configurator"
	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/runner"
	"github.com/giantswarm/muster-ensemble/internal/summary"
	"github.com/giantswarm/muster-ensemble/internal/task"
	"github.com/giantswarm/muster-ensemble/internal/topology"
)

type fakeConfigurator struct {
	result task.ConfiguratorResult
	reason string
}

func (c *fakeConfigurator) CanDryRun(*task.Task) bool { return true }
func (c *fakeConfigurator) CanRun(*task.Task) (bool, string) {
	if c.reason != "" {
		return false, c.reason
	}
	return true, ""
}
func (c *fakeConfigurator) ShouldRun(t *task.Task) instance.Priority { return t.Target.Priority() }
func (c *fakeConfigurator) Render(*task.Task) (any, error)           { return nil, nil }
func (c *fakeConfigurator) Run(*task.Task) (configurator.Producer, error) {
	result := c.result
	return fakeProducerFunc(func(any) (configurator.Step, error) {
		return configurator.Step{ConfiguratorResult: &result}, nil
	}), nil
}

type fakeProducerFunc func(any) (configurator.Step, error)

func (f fakeProducerFunc) Next(resumeValue any) (configurator.Step, error) { return f(resumeValue) }

func TestBuild_CountsByStatus(t *testing.T) {
	reg := configurator.NewRegistry()
	reg.Register("ok-cfg", func() configurator.Configurator {
		return &fakeConfigurator{result: task.ConfiguratorResult{Success: true, Applied: true, Modified: true, ReadyState: instance.StatusOK}}
	})
	reg.Register("skip-cfg", func() configurator.Configurator {
		return &fakeConfigurator{reason: "nothing to do"}
	})

	okTarget := instance.NewInstance("web", &topology.Template{Name: "web", Type: "Compute"})
	skipTarget := instance.NewInstance("cache", &topology.Template{Name: "cache", Type: "Compute"})

	g := instance.NewGraph(okTarget)
	require.NoError(t, g.Add(skipTarget))

	r := runner.New(reg, g, 1)
	result := r.RunJob([]task.TaskRequest{
		{ConfigSpec: task.ConfigSpec{Implementation: "ok-cfg", Interface: "Standard", Operation: "create"}, Target: okTarget},
		{ConfigSpec: task.ConfigSpec{Implementation: "skip-cfg", Interface: "Standard", Operation: "create"}, Target: skipTarget},
	})

	s := summary.Build("job-1", result)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.OK)
	assert.Equal(t, 1, s.Skipped)
	require.Len(t, s.Tasks, 2)
	assert.Equal(t, "web", s.Tasks[0].Target)
	assert.Equal(t, "Compute", s.Tasks[0].Type)

	data, err := s.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": "job-1"`)

	var buf bytes.Buffer
	s.RenderTable(&buf)
	assert.Contains(t, buf.String(), "web")
	assert.Contains(t, buf.String(), "cache")
}

func TestExitCode_ThresholdTable(t *testing.T) {
	assert.Equal(t, 0, summary.ExitCode(instance.StatusOK, false, summary.ThresholdError))
	assert.Equal(t, 1, summary.ExitCode(instance.StatusError, false, summary.ThresholdError))
	assert.Equal(t, 0, summary.ExitCode(instance.StatusDegraded, false, summary.ThresholdError))
	assert.Equal(t, 1, summary.ExitCode(instance.StatusDegraded, false, summary.ThresholdDegraded))
	assert.Equal(t, 1, summary.ExitCode(instance.StatusDegraded, false, summary.ThresholdOK))
	assert.Equal(t, 0, summary.ExitCode(instance.StatusError, false, summary.ThresholdNever))
	assert.Equal(t, 2, summary.ExitCode(instance.StatusOK, true, summary.ThresholdNever), "an abort always exits 2 regardless of threshold")
}
