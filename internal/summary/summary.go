// Package summary builds the job summary spec.md §6 describes: a JSON
// envelope (job totals plus one row per task) and a plain-text table
// rendering for interactive use, plus the --jobexitcode threshold logic
// that turns a finished job's status into a process exit code.
//
// Grounded on the teacher's internal/cli table-rendering conventions
// (kubectl-style plain output, no box-drawing) re-expressed on top of
// jedib0t/go-pretty/v6's table package rather than a hand-rolled writer.
package summary

import (
	"encoding/json"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/runner"
	"github.com/giantswarm/muster-ensemble/internal/task"
)

// TaskSummary is one row of the job summary's tasks array (spec §6).
type TaskSummary struct {
	Target         string `json:"target"`
	Operation      string `json:"operation"`
	Template       string `json:"template"`
	Type           string `json:"type"`
	TargetStatus   string `json:"targetStatus"`
	TargetState    string `json:"targetState"`
	Status         string `json:"status"`
	Configurator   string `json:"configurator"`
	Priority       string `json:"priority"`
	Reason         string `json:"reason,omitempty"`
	Changed        bool   `json:"changed"`
}

// JobSummary is the top-level job summary JSON document (spec §6).
type JobSummary struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Total   int    `json:"total"`
	OK      int    `json:"ok"`
	Error   int    `json:"error"`
	Unknown int    `json:"unknown"`
	Skipped int    `json:"skipped"`
	Changed int    `json:"changed"`

	Tasks []TaskSummary `json:"tasks"`
}

// Build converts a finished runner.JobResult into a JobSummary.
func Build(jobID string, result runner.JobResult) *JobSummary {
	s := &JobSummary{ID: jobID, Status: result.Status().String()}

	for _, t := range result.Tasks {
		row := taskSummaryOf(t)
		s.Tasks = append(s.Tasks, row)

		s.Total++
		switch t.Status() {
		case task.StatusSkipped:
			s.Skipped++
		case task.StatusError:
			s.Error++
		case task.StatusOK:
			if t.LocalStatus() == instance.StatusUnknown {
				s.Unknown++
			} else {
				s.OK++
			}
		}
		if row.Changed {
			s.Changed++
		}
	}

	return s
}

func taskSummaryOf(t *task.Task) TaskSummary {
	templateName, typeName := "", ""
	targetStatus, targetState := "", ""
	if t.Target != nil {
		if t.Target.Template != nil {
			templateName = t.Target.Template.Name
			typeName = t.Target.Template.Type
		}
		targetStatus = t.Target.LocalStatus().String()
		targetState = t.Target.NodeState.String()
	}

	return TaskSummary{
		Target:       targetNameOf(t),
		Operation:    t.Request.ConfigSpec.Interface + "." + t.Request.ConfigSpec.Operation,
		Template:     templateName,
		Type:         typeName,
		TargetStatus: targetStatus,
		TargetState:  targetState,
		Status:       string(t.Status()),
		Configurator: t.Request.ConfigSpec.Implementation,
		Priority:     t.Priority().String(),
		Reason:       t.Reason,
		Changed:      t.Changed(),
	}
}

func targetNameOf(t *task.Task) string {
	if t.Target == nil {
		return ""
	}
	return t.Target.Name
}

// JSON marshals the summary the way a job's --format json output does.
func (s *JobSummary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// RenderTable writes a plain, kubectl-style table to w: no box-drawing
// characters, one row per task, so it pipes cleanly into grep/awk.
func (s *JobSummary) RenderTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleDefault)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateHeader = false

	t.AppendHeader(table.Row{"TARGET", "OPERATION", "STATUS", "PRIORITY", "CHANGED", "REASON"})
	for _, row := range s.Tasks {
		t.AppendRow(table.Row{row.Target, row.Operation, row.Status, row.Priority, row.Changed, row.Reason})
	}
	t.Render()
}
