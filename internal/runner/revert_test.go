package runner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-ensemble/internal/configurator"
	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/runner"
	"github.com/giantswarm/muster-ensemble/internal/task"
	"github.com/giantswarm/muster-ensemble/internal/topology"
)

// attrWritingConfigurator mutates the task's target attributes directly
// (via the task's own AttrManager) before returning a caller-supplied
// ConfiguratorResult, letting tests script exactly what a configurator's
// run() would have done to the instance.
type attrWritingConfigurator struct {
	key, value string
	result     task.ConfiguratorResult
	subReq     *task.TaskRequest // when set, yielded as a sub-TaskRequest before the terminal result
}

func (c *attrWritingConfigurator) CanDryRun(*task.Task) bool          { return true }
func (c *attrWritingConfigurator) CanRun(*task.Task) (bool, string)   { return true, "" }
func (c *attrWritingConfigurator) ShouldRun(t *task.Task) instance.Priority { return t.Target.Priority() }
func (c *attrWritingConfigurator) Render(*task.Task) (any, error)     { return nil, nil }
func (c *attrWritingConfigurator) Run(t *task.Task) (configurator.Producer, error) {
	t.AttrManager.Set(c.key, c.value)
	return &attrWritingProducer{subReq: c.subReq, result: c.result}, nil
}

type attrWritingProducer struct {
	subReq  *task.TaskRequest
	result  task.ConfiguratorResult
	yielded bool
}

func (p *attrWritingProducer) Next(resumeValue any) (configurator.Step, error) {
	if p.subReq != nil && !p.yielded {
		p.yielded = true
		return configurator.Step{TaskRequest: p.subReq}, nil
	}
	result := p.result
	return configurator.Step{ConfiguratorResult: &result}, nil
}

// TestParentRevert_DoesNotErasePriorSubTaskChangeRecord pins Open Question
// 2: when a parent task's own result reverts (applied=false,
// readyState=notapplied), its AttrManager restores only the attributes the
// PARENT task wrote, to their values from when it started — a sub-task's own
// ChangeRecord, Changed() outcome and attribute writes stay exactly as that
// sub-task left them.
func TestParentRevert_DoesNotErasePriorSubTaskChangeRecord(t *testing.T) {
	target := instance.NewInstance("web", &topology.Template{Name: "web"})
	target.SetAttribute("original", "unchanged")

	subReq := task.TaskRequest{
		ConfigSpec: task.ConfigSpec{Implementation: "sub", Interface: "Standard", Operation: "configure"},
		Target:     target,
	}

	reg := configurator.NewRegistry()
	reg.Register("sub", func() configurator.Configurator {
		return &attrWritingConfigurator{
			key: "written-by-sub", value: "sub-value",
			result: task.ConfiguratorResult{Success: true, Applied: true, Modified: true, ReadyState: instance.StatusOK},
		}
	})
	reg.Register("parent", func() configurator.Configurator {
		return &attrWritingConfigurator{
			key:    "written-by-parent",
			value:  "parent-value",
			subReq: &subReq,
			result: task.ConfiguratorResult{Success: true, Applied: false, Modified: false, ReadyState: instance.StatusNotApplied, Reason: "no changes required"},
		}
	})

	g := instance.NewGraph(target)
	r := runner.New(reg, g, 1)

	req := task.TaskRequest{
		ConfigSpec: task.ConfigSpec{Implementation: "parent", Interface: "Standard", Operation: "create"},
		Target:     target,
	}
	result := r.RunJob([]task.TaskRequest{req})

	require.Len(t, result.Tasks, 2)
	subTask, parentTask := result.Tasks[0], result.Tasks[1]

	assert.True(t, subTask.Changed(), "the sub-task's own record must show it changed the target")
	assert.Equal(t, task.StatusOK, subTask.Status())

	assert.Equal(t, task.StatusSkipped, parentTask.Status(), "applied=false,notapplied finishes as skipped")

	v, ok := target.GetAttribute("original")
	require.True(t, ok)
	assert.Equal(t, "unchanged", v, "parent's revert restores its own pre-task snapshot")

	_, stillPresent := target.GetAttribute("written-by-parent")
	assert.False(t, stillPresent, "the parent's own attribute write is reverted")

	_, subAttrStillLive := target.GetAttribute("written-by-sub")
	assert.True(t, subAttrStillLive, "the sub-task's attribute write is not rolled back by the parent's revert")
}
