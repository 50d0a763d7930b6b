package instance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/topology"
)

// fakeOperational is a minimal Operational for exercising the aggregation
// algebra in isolation from the instance graph.
type fakeOperational struct {
	priority instance.Priority
	status   instance.Status
	deps     []instance.Operational
}

func (f *fakeOperational) Priority() instance.Priority                   { return f.priority }
func (f *fakeOperational) LocalStatus() instance.Status                  { return f.status }
func (f *fakeOperational) ManualOverrideStatus() *instance.Status        { return nil }
func (f *fakeOperational) OperationalDependencies() []instance.Operational { return f.deps }

func TestAggregateStatus_RequiredErrorShortCircuits(t *testing.T) {
	subject := &fakeOperational{
		priority: instance.PriorityOptional,
		status:   instance.StatusOK,
		deps: []instance.Operational{
			&fakeOperational{priority: instance.PriorityRequired, status: instance.StatusError},
			&fakeOperational{priority: instance.PriorityOptional, status: instance.StatusOK},
		},
	}
	assert.Equal(t, instance.StatusError, instance.ComputeStatus(subject))
}

func TestAggregateStatus_OptionalNonOperationalDegrades(t *testing.T) {
	subject := &fakeOperational{
		priority: instance.PriorityOptional,
		status:   instance.StatusOK,
		deps: []instance.Operational{
			&fakeOperational{priority: instance.PriorityOptional, status: instance.StatusAbsent},
		},
	}
	assert.Equal(t, instance.StatusDegraded, instance.ComputeStatus(subject))
}

func TestAggregateStatus_RequiredDegradedDowngrades(t *testing.T) {
	subject := &fakeOperational{
		priority: instance.PriorityOptional,
		status:   instance.StatusOK,
		deps: []instance.Operational{
			&fakeOperational{priority: instance.PriorityRequired, status: instance.StatusDegraded},
		},
	}
	assert.Equal(t, instance.StatusDegraded, instance.ComputeStatus(subject))
}

func TestAggregateStatus_IgnoredDependencySkipped(t *testing.T) {
	subject := &fakeOperational{
		priority: instance.PriorityOptional,
		status:   instance.StatusOK,
		deps: []instance.Operational{
			&fakeOperational{priority: instance.PriorityIgnore, status: instance.StatusError},
		},
	}
	assert.Equal(t, instance.StatusOK, instance.ComputeStatus(subject))
}

func TestAggregateStatus_AllOperationalKeepsDefault(t *testing.T) {
	subject := &fakeOperational{
		priority: instance.PriorityOptional,
		status:   instance.StatusOK,
		deps: []instance.Operational{
			&fakeOperational{priority: instance.PriorityRequired, status: instance.StatusOK},
			&fakeOperational{priority: instance.PriorityOptional, status: instance.StatusOK},
		},
	}
	assert.Equal(t, instance.StatusOK, instance.ComputeStatus(subject))
}

func TestComputeStatus_TerminalLocalStatusSkipsAggregation(t *testing.T) {
	// A subject already in a terminal state (>= StatusError) should not be
	// rescued by operational dependencies: the TOSCA lifecycle treats
	// absent/unknown as facts about the subject itself.
	subject := &fakeOperational{
		priority: instance.PriorityOptional,
		status:   instance.StatusAbsent,
		deps: []instance.Operational{
			&fakeOperational{priority: instance.PriorityRequired, status: instance.StatusOK},
		},
	}
	assert.Equal(t, instance.StatusAbsent, instance.ComputeStatus(subject))
}

func TestComputeStatus_ManualOverrideReplacesLocalButStillAggregates(t *testing.T) {
	override := instance.StatusDegraded
	subject := &fakeOperationalWithOverride{
		fakeOperational: fakeOperational{
			priority: instance.PriorityOptional,
			status:   instance.StatusOK,
			deps: []instance.Operational{
				&fakeOperational{priority: instance.PriorityRequired, status: instance.StatusError},
			},
		},
		override: &override,
	}
	assert.Equal(t, instance.StatusError, instance.ComputeStatus(subject))
}

type fakeOperationalWithOverride struct {
	fakeOperational
	override *instance.Status
}

func (f *fakeOperationalWithOverride) ManualOverrideStatus() *instance.Status { return f.override }

func TestInstance_AddRequirement_EnforcesCapabilityInvariant(t *testing.T) {
	target := instance.NewInstance("target", &topology.Template{Name: "target", Type: "Service"})
	target.Capabilities = []string{"endpoint"}

	source := instance.NewInstance("source", &topology.Template{Name: "source", Type: "Service"})

	err := source.AddRequirement(&instance.Relationship{
		RequirementName:  "host",
		Target:           target,
		TargetCapability: "endpoint",
	})
	require.NoError(t, err)

	err = source.AddRequirement(&instance.Relationship{
		RequirementName:  "missing",
		Target:           target,
		TargetCapability: "does-not-exist",
	})
	require.Error(t, err)
}

func TestInstance_SetLocalStatus_EnforcesNodeStateInvariant(t *testing.T) {
	inst := instance.NewInstance("n", nil)
	inst.NodeState = instance.NodeStarted
	inst.SetLocalStatus(instance.StatusAbsent)
	assert.Equal(t, instance.NodeStopped, inst.NodeState)
}
