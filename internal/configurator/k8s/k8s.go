// Package k8s implements the cluster/package-manager configurator family
// (spec.md §4.6, "Configurator implementation reference"): applying a
// declarative manifest as an unstructured Kubernetes object via
// server-side apply. Grounded on the teacher's controller-runtime client
// usage (its reconciler packages build an unstructured client the same
// way, before this pass pruned the CRD-specific reconciler out) and on
// unfurl/configurators/k8s.py's apply-and-report shape.
package k8s

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/giantswarm/muster-ensemble/internal/configurator"
	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/task"
)

// Configurator applies a single Kubernetes manifest, given as a YAML
// string or a pre-decoded map under the "manifest" input, via server-side
// apply under FieldOwner.
type Configurator struct {
	Client     client.Client
	FieldOwner string
}

// NewConfigurator is the registry factory for the "k8s" implementation.
func NewConfigurator(c client.Client, fieldOwner string) func() configurator.Configurator {
	if fieldOwner == "" {
		fieldOwner = "ensemble"
	}
	return func() configurator.Configurator { return Configurator{Client: c, FieldOwner: fieldOwner} }
}

func (c Configurator) CanDryRun(t *task.Task) bool { return true }

func (c Configurator) CanRun(t *task.Task) (bool, string) {
	if c.Client == nil {
		return false, "no Kubernetes client configured"
	}
	if _, err := decodeManifest(t.Request.ConfigSpec.Inputs); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (c Configurator) ShouldRun(t *task.Task) instance.Priority {
	return t.Target.Priority()
}

func (c Configurator) Render(t *task.Task) (any, error) {
	return decodeManifest(t.Request.ConfigSpec.Inputs)
}

func (c Configurator) Run(t *task.Task) (configurator.Producer, error) {
	obj, ok := t.Rendered.(*unstructured.Unstructured)
	if !ok {
		return nil, fmt.Errorf("k8s: Render did not produce an unstructured object")
	}
	dryRun := false
	if v, ok := t.Request.ConfigSpec.Inputs["dryrun"].(bool); ok {
		dryRun = v
	}
	return &producer{client: c.Client, fieldOwner: c.FieldOwner, obj: obj, dryRun: dryRun}, nil
}

type producer struct {
	client     client.Client
	fieldOwner string
	obj        *unstructured.Unstructured
	dryRun     bool
	done       bool
}

func (p *producer) Next(resumeValue any) (configurator.Step, error) {
	if p.done {
		result := task.ConfiguratorResult{Success: false, Reason: "producer already finished"}
		return configurator.Step{ConfiguratorResult: &result}, nil
	}
	p.done = true

	if p.dryRun {
		result := task.Skipped(fmt.Sprintf("dry-run: would apply %s/%s %s", p.obj.GetAPIVersion(), p.obj.GetKind(), p.obj.GetName()))
		return configurator.Step{ConfiguratorResult: &result}, nil
	}

	modified, err := apply(context.Background(), p.client, p.fieldOwner, p.obj)
	if err != nil {
		result := task.Errored(fmt.Sprintf("k8s apply: %v", err))
		return configurator.Step{ConfiguratorResult: &result}, nil
	}

	result := task.ConfiguratorResult{
		Success:    true,
		Applied:    true,
		Modified:   modified,
		ReadyState: instance.StatusOK,
		Outputs: map[string]any{
			"apiVersion": p.obj.GetAPIVersion(),
			"kind":       p.obj.GetKind(),
			"name":       p.obj.GetName(),
			"namespace":  p.obj.GetNamespace(),
		},
	}
	return configurator.Step{ConfiguratorResult: &result}, nil
}

// decodeManifest accepts either a "manifest" input holding a YAML string
// or a pre-decoded map[string]any, normalizing to an
// *unstructured.Unstructured.
func decodeManifest(inputs map[string]any) (*unstructured.Unstructured, error) {
	raw, ok := inputs["manifest"]
	if !ok {
		return nil, fmt.Errorf("k8s configurator requires a 'manifest' input")
	}

	var obj map[string]any
	switch v := raw.(type) {
	case string:
		if err := sigsyaml.Unmarshal([]byte(v), &obj); err != nil {
			return nil, fmt.Errorf("k8s: decoding manifest yaml: %w", err)
		}
	case map[string]any:
		obj = v
	default:
		return nil, fmt.Errorf("k8s: 'manifest' input must be a YAML string or a map, got %T", raw)
	}

	u := &unstructured.Unstructured{Object: obj}
	if u.GetAPIVersion() == "" || u.GetKind() == "" {
		return nil, fmt.Errorf("k8s: manifest is missing apiVersion/kind")
	}
	return u, nil
}

// apply performs the server-side apply patch and reports whether it
// created or changed the object. Readiness-watching beyond a successful
// write is not modeled in this pass.
func apply(ctx context.Context, c client.Client, fieldOwner string, obj *unstructured.Unstructured) (modified bool, err error) {
	existing := &unstructured.Unstructured{}
	existing.SetGroupVersionKind(obj.GroupVersionKind())
	getErr := c.Get(ctx, client.ObjectKeyFromObject(obj), existing)
	if getErr != nil && !apierrors.IsNotFound(getErr) {
		return false, getErr
	}

	if err := c.Patch(ctx, obj, client.Apply, client.ForceOwnership, client.FieldOwner(fieldOwner)); err != nil {
		return false, err
	}
	return apierrors.IsNotFound(getErr) || existing.GetResourceVersion() != obj.GetResourceVersion(), nil
}
