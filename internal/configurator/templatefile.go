package configurator

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/task"
)

// TemplateFileConfigurator renders a text/template (with sprig functions,
// the same pairing the teacher's internal/workflow/executor.go uses for
// argument templating) to a destination path. Grounded on the teacher's
// template-rendering flow: resolve inputs against a context map, execute,
// write the result.
type TemplateFileConfigurator struct{}

// NewTemplateFileConfigurator is the registry factory for "templatefile".
func NewTemplateFileConfigurator() Configurator { return &TemplateFileConfigurator{} }

func (c *TemplateFileConfigurator) CanDryRun(t *task.Task) bool { return true }

func (c *TemplateFileConfigurator) CanRun(t *task.Task) (bool, string) {
	inputs := t.Request.ConfigSpec.Inputs
	if _, ok := inputs["path"].(string); !ok {
		return false, "templatefile configurator requires a 'path' input"
	}
	if _, ok := inputs["contents"].(string); !ok {
		return false, "templatefile configurator requires a 'contents' input"
	}
	return true, ""
}

func (c *TemplateFileConfigurator) ShouldRun(t *task.Task) instance.Priority {
	return t.Target.Priority()
}

type renderedFile struct {
	path     string
	contents string
	mode     os.FileMode
}

func (c *TemplateFileConfigurator) Render(t *task.Task) (any, error) {
	inputs := t.Request.ConfigSpec.Inputs
	path, _ := inputs["path"].(string)
	rawTemplate, _ := inputs["contents"].(string)

	tmpl, err := template.New("templatefile").Funcs(sprig.TxtFuncMap()).Parse(rawTemplate)
	if err != nil {
		return nil, fmt.Errorf("templatefile: parse: %w", err)
	}

	ctx := map[string]any{"inputs": inputs, "attributes": t.Target.SnapshotAttributes()}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("templatefile: render: %w", err)
	}

	mode := os.FileMode(0o644)
	if m, ok := inputs["mode"].(int); ok {
		mode = os.FileMode(m)
	}

	return renderedFile{path: path, contents: buf.String(), mode: mode}, nil
}

func (c *TemplateFileConfigurator) Run(t *task.Task) (Producer, error) {
	return &templateFileProducer{t: t}, nil
}

type templateFileProducer struct {
	t    *task.Task
	done bool
}

func (p *templateFileProducer) Next(resumeValue any) (Step, error) {
	if p.done {
		result := task.ConfiguratorResult{Success: false, Reason: "producer already finished"}
		return Step{ConfiguratorResult: &result}, nil
	}
	p.done = true

	rf, _ := p.t.Rendered.(renderedFile)

	dryRun := false
	if v, ok := p.t.Request.ConfigSpec.Inputs["dryrun"].(bool); ok {
		dryRun = v
	}

	existing, readErr := os.ReadFile(rf.path)
	unchanged := readErr == nil && string(existing) == rf.contents

	if unchanged {
		result := task.ConfiguratorResult{Success: true, Applied: true, Modified: false, ReadyState: instance.StatusOK}
		return Step{ConfiguratorResult: &result}, nil
	}

	if dryRun {
		result := task.Skipped("dry-run: would write " + rf.path)
		return Step{ConfiguratorResult: &result}, nil
	}

	if err := os.MkdirAll(filepath.Dir(rf.path), 0o755); err != nil {
		result := task.Errored(err.Error())
		return Step{ConfiguratorResult: &result}, nil
	}
	if err := os.WriteFile(rf.path, []byte(rf.contents), rf.mode); err != nil {
		result := task.Errored(err.Error())
		return Step{ConfiguratorResult: &result}, nil
	}

	result := task.ConfiguratorResult{
		Success:    true,
		Applied:    true,
		Modified:   true,
		ReadyState: instance.StatusOK,
		Outputs:    map[string]any{"path": rf.path, "bytesWritten": len(rf.contents)},
	}
	return Step{ConfiguratorResult: &result}, nil
}
