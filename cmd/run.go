package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/giantswarm/muster-ensemble/internal/configurator"
	"github.com/giantswarm/muster-ensemble/internal/configurator/k8s"
	"github.com/giantswarm/muster-ensemble/internal/manifest"
	"github.com/giantswarm/muster-ensemble/internal/planner"
	"github.com/giantswarm/muster-ensemble/internal/runner"
	"github.com/giantswarm/muster-ensemble/internal/summary"
	"github.com/giantswarm/muster-ensemble/internal/task"
	"github.com/giantswarm/muster-ensemble/internal/topology"
	"github.com/giantswarm/muster-ensemble/pkg/logging"
)

var runOpts struct {
	file           string
	add            bool
	update         bool
	upgrade        bool
	all            bool
	repair         string
	dryRun         bool
	readonly       bool
	planOnly       bool
	requiredOnly   bool
	revertObsolete bool
	workflow       string
	resource       string
	instances      []string
	verbose        bool
	format         string
	jobExitCode    string
	jobOrdinal     int
	pushgateway    string
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and run one reconciliation job against a manifest",
		Long: `run loads a persisted ensemble document, diffs its declared service
template against the live instance graph, plans an ordered stream of tasks
per spec.md §4–§5, executes them through the configurator registry, and
writes the updated instance status and change log back to the document.`,
		RunE: runRun,
	}

	flags := cmd.Flags()
	flags.StringVarP(&runOpts.file, "file", "f", "", "path to the ensemble document (required)")
	flags.BoolVar(&runOpts.add, "add", false, "instantiate templates with no existing instance")
	flags.BoolVar(&runOpts.update, "update", false, "reconfigure instances whose spec or inputs changed")
	flags.BoolVar(&runOpts.upgrade, "upgrade", false, "reconfigure instances whose operation implementation version changed")
	flags.BoolVar(&runOpts.all, "all", false, "run the workflow on every existing instance and add missing ones (implies --add --update --upgrade)")
	flags.StringVar(&runOpts.repair, "repair", "", "repair instances: error (errored only) or degraded (degraded and errored); any other value repairs nothing")
	flags.BoolVar(&runOpts.dryRun, "dryrun", false, "render and gate tasks without applying any change")
	flags.BoolVar(&runOpts.readonly, "readonly", false, "run only read-only operations (check/discover)")
	flags.BoolVar(&runOpts.planOnly, "planonly", false, "print the plan and exit without running it")
	flags.BoolVar(&runOpts.requiredOnly, "requiredonly", false, "skip tasks not marked required: those on existing instances with PriorityOptional or PriorityIgnore (create tasks are always required)")
	flags.BoolVar(&runOpts.revertObsolete, "revert-obsolete", false, "undeploy instances whose template was removed from the topology")
	flags.StringVar(&runOpts.workflow, "workflow", "", "workflow to run: deploy|undeploy|check|stop|discover|run (default update)")
	flags.StringVar(&runOpts.resource, "resource", "", "limit the job to a single node template by name")
	flags.StringArrayVar(&runOpts.instances, "instance", nil, "limit the job to one or more node templates by name (repeatable)")
	flags.BoolVarP(&runOpts.verbose, "verbose", "v", false, "log every task's gating decisions, not just its outcome")
	flags.StringVar(&runOpts.format, "format", "table", "job summary output format: table|json")
	flags.StringVar(&runOpts.jobExitCode, "jobexitcode", "error", "exit code threshold: ok|error|degraded|never")
	flags.IntVar(&runOpts.jobOrdinal, "job-ordinal", 1, "job ordinal seeding this run's ChangeIDs")
	flags.StringVar(&runOpts.pushgateway, "pushgateway", "", "Prometheus Pushgateway URL to push per-task metrics to after the job finishes")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	if runOpts.file == "" {
		return fmt.Errorf("run: --file is required")
	}
	if runOpts.verbose {
		logging.InitForCLI(logging.LevelDebug, cmd.ErrOrStderr())
	}
	runID := uuid.New().String()

	data, err := os.ReadFile(runOpts.file)
	if err != nil {
		return fmt.Errorf("run: reading %s: %w", runOpts.file, err)
	}

	doc, err := manifest.Parse(data)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	topo, err := topology.Load(doc.Spec.ServiceTemplate, doc.Environment.Inputs)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if err := topo.Validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	graph, err := doc.BuildGraph(topo)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	opts := buildJobOptions()
	records := manifest.NewChangeStore(doc)
	resolver := graphInputResolver{graph: graph}

	requests, planErrs := planner.Plan(graph, topo, opts, records, resolver)
	for _, pe := range planErrs {
		logging.Warn("Planner", "%v", pe)
	}

	if runOpts.planOnly {
		return printPlan(cmd, requests)
	}

	registry := buildRegistry()
	r := runner.New(registry, graph, runOpts.jobOrdinal)
	r.DryRun = runOpts.dryRun
	r.Conditions = graphConditionEvaluator{graph: graph}
	metricsReg := prometheus.NewRegistry()
	r.Metrics = runner.NewMetrics(metricsReg)
	result := r.RunJob(requests)

	if runOpts.pushgateway != "" {
		if err := push.New(runOpts.pushgateway, "ensemble_run").Gatherer(metricsReg).Push(); err != nil {
			logging.Warn("Runner", "pushing metrics to %s: %v", runOpts.pushgateway, err)
		}
	}

	jobID := fmt.Sprintf("%06d", runOpts.jobOrdinal)
	if result.Aborted {
		logging.Audit(logging.AuditEvent{RunID: runID, Action: "job_aborted", Outcome: "failure", JobID: jobID})
	} else {
		logging.Audit(logging.AuditEvent{RunID: runID, Action: "job_completed", Outcome: "success", JobID: jobID, Details: result.Status().String()})
	}

	doc.SnapshotGraph(graph)
	doc.AppendChangeRecords(result.ChangeRecords...)

	out, err := doc.Save()
	if err != nil {
		return fmt.Errorf("run: saving document: %w", err)
	}
	if err := os.WriteFile(runOpts.file, out, 0o644); err != nil {
		return fmt.Errorf("run: writing %s: %w", runOpts.file, err)
	}

	jobSummary := summary.Build(jobID, result)

	if runOpts.format == "json" {
		j, err := jobSummary.JSON()
		if err != nil {
			return fmt.Errorf("run: marshaling summary: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(j))
	} else {
		jobSummary.RenderTable(cmd.OutOrStdout())
	}

	code := summary.ExitCode(result.Status(), result.Aborted, summary.Threshold(runOpts.jobExitCode))
	if code != ExitCodeSuccess {
		os.Exit(code)
	}
	return nil
}

func buildJobOptions() planner.JobOptions {
	return planner.JobOptions{
		Workflow:       runOpts.workflow,
		Add:            runOpts.add || runOpts.all,
		Update:         runOpts.update || runOpts.all,
		Upgrade:        runOpts.upgrade || runOpts.all,
		Repair:         runOpts.repair,
		All:            runOpts.all,
		RevertObsolete: runOpts.revertObsolete,
		Readonly:       runOpts.readonly,
		RequiredOnly:   runOpts.requiredOnly,
		Resource:       runOpts.resource,
		Resources:      runOpts.instances,
		PlanOnly:       runOpts.planOnly,
		DryRun:         runOpts.dryRun,
	}
}

// buildRegistry wires every configurator the process knows how to run. The
// Kubernetes configurator is always registered; when no kubeconfig is
// reachable its client is left nil and Configurator.CanRun reports that
// reason per-task rather than failing the whole job at startup.
func buildRegistry() *configurator.Registry {
	registry := configurator.NewRegistry()
	registry.Register("shell", func() configurator.Configurator { return configurator.NewShellConfigurator() })
	registry.Register("templatefile", func() configurator.Configurator { return configurator.NewTemplateFileConfigurator() })

	var k8sClient client.Client
	if restCfg, err := ctrlconfig.GetConfig(); err == nil {
		if c, err := client.New(restCfg, client.Options{}); err == nil {
			k8sClient = c
		} else {
			logging.Warn("Configurator", "building Kubernetes client: %v", err)
		}
	}
	registry.Register("k8s", k8s.NewConfigurator(k8sClient, "ensemble"))

	return registry
}

// printPlan implements --planonly: one line per planned task, naming the
// target, the operation it would run, and why the planner chose it,
// without executing anything or touching the document.
func printPlan(cmd *cobra.Command, requests []task.TaskRequest) error {
	w := cmd.OutOrStdout()
	for _, req := range requests {
		target := "-"
		if req.Target != nil {
			target = req.Target.Name
		}
		fmt.Fprintf(w, "%s\t%s.%s\t%s\t%s\n",
			target, req.ConfigSpec.Interface, req.ConfigSpec.Operation, req.ConfigSpec.Implementation, req.Reason)
	}
	return nil
}
