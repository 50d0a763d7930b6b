package configurator

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/task"
	"github.com/giantswarm/muster-ensemble/pkg/logging"
)

// ShellConfigurator runs a shell command built from the task's rendered
// inputs, enforcing the operation's timeout by killing the child process on
// expiry (spec §5 "Cancellation & timeouts"). Grounded on
// unfurl/configurators/shell.py's subprocess handling: command template
// rendering, cwd override, and truncated stdout/stderr capture.
type ShellConfigurator struct{}

// NewShellConfigurator is the registry factory for the "shell" short name.
func NewShellConfigurator() Configurator { return &ShellConfigurator{} }

func (s *ShellConfigurator) CanDryRun(t *task.Task) bool { return false }

func (s *ShellConfigurator) CanRun(t *task.Task) (bool, string) {
	if _, ok := t.Request.ConfigSpec.Inputs["command"]; !ok {
		return false, "shell configurator requires a 'command' input"
	}
	return true, ""
}

func (s *ShellConfigurator) ShouldRun(t *task.Task) instance.Priority {
	return t.Target.Priority()
}

// renderedCommand is what Render prepares: the fully substituted command
// line plus the working directory, computed without any side effects.
type renderedCommand struct {
	command string
	cwd     string
	shell   bool
}

func (s *ShellConfigurator) Render(t *task.Task) (any, error) {
	raw, _ := t.Request.ConfigSpec.Inputs["command"].(string)
	tmpl, err := template.New("command").Funcs(sprig.TxtFuncMap()).Parse(raw)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	vars := map[string]any{"inputs": t.Request.ConfigSpec.Inputs}
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, err
	}
	cwd, _ := t.Request.ConfigSpec.Inputs["cwd"].(string)
	useShell := true
	if v, ok := t.Request.ConfigSpec.Inputs["shell"].(bool); ok {
		useShell = v
	}
	return renderedCommand{command: buf.String(), cwd: cwd, shell: useShell}, nil
}

func (s *ShellConfigurator) Run(t *task.Task) (Producer, error) {
	return &shellProducer{t: t}, nil
}

type shellProducer struct {
	t    *task.Task
	done bool
}

func (p *shellProducer) Next(resumeValue any) (Step, error) {
	if p.done {
		result := task.ConfiguratorResult{Success: false, Reason: "producer already finished"}
		return Step{ConfiguratorResult: &result}, nil
	}
	p.done = true

	rc, _ := p.t.Rendered.(renderedCommand)

	timeout := time.Duration(p.t.Request.ConfigSpec.Timeout) * time.Second
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if rc.shell {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", rc.command)
	} else {
		parts := strings.Fields(rc.command)
		if len(parts) == 0 {
			result := task.Errored("empty command")
			return Step{ConfiguratorResult: &result}, nil
		}
		cmd = exec.CommandContext(ctx, parts[0], parts[1:]...)
	}
	if rc.cwd != "" {
		cmd.Dir = rc.cwd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		logging.Warn("Configurator", "shell command timed out after %s: %s", timeout, rc.command)
		result := task.ConfiguratorResult{
			Success:    false,
			Applied:    true,
			Modified:   true,
			ReadyState: instance.StatusError,
			Reason:     "timeout",
		}
		return Step{ConfiguratorResult: &result}, nil
	}

	if err != nil {
		result := task.ConfiguratorResult{
			Success:    false,
			Applied:    true,
			Modified:   true,
			ReadyState: instance.StatusError,
			Reason:     err.Error(),
			Messages:   []string{truncate(stderr.String())},
		}
		return Step{ConfiguratorResult: &result}, nil
	}

	result := task.ConfiguratorResult{
		Success:    true,
		Applied:    true,
		Modified:   true,
		ReadyState: instance.StatusOK,
		Outputs: map[string]any{
			"stdout": truncate(stdout.String()),
			"stderr": truncate(stderr.String()),
		},
	}
	return Step{ConfiguratorResult: &result}, nil
}

func truncate(s string) string {
	const max = 4000
	if len(s) <= max {
		return s
	}
	return s[:max/2] + " [truncated] " + s[len(s)-max/2:]
}
