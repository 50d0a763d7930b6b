// Package logging provides ensemble's structured logging: a slog-backed
// CLI logger shared by every subsystem, plus [Audit] for job-lifecycle
// events that don't otherwise land in a persisted ChangeRecord. Each
// invocation of the run command mints a RunID (a UUID, unlike the
// sortable-but-reused job/task ordinals) so audit events from one process
// can be correlated even when --job-ordinal collides across runs.
//
// # Log Levels
//
//   - Debug: per-task gating decisions (CanRun/ShouldRun outcomes), enabled
//     by --verbose
//   - Info: job/task lifecycle milestones
//   - Warn: planner errors for a single target that don't abort the job
//   - Error: task failures and fatal command errors
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Planner", "planned %d tasks for job %s", len(requests), jobID)
//	logging.Error("Runner", err, "task %s failed", taskID)
//
// InitForCLI also bridges the configured handler into controller-runtime's
// logr interface, so the Kubernetes configurator's client logs through the
// same handler instead of controller-runtime's own stderr warnings about
// an uninitialized logger.
//
// # Subsystems
//
// Log calls are tagged with the subsystem that produced them:
//
//   - CLI: command parsing and top-level Execute() failures
//   - Planner: Plan() errors for individual targets
//   - Runner: task execution and configurator dispatch
//   - Configurator: registry wiring (e.g. a Kubernetes client that failed
//     to build from the ambient kubeconfig)
//   - Manifest: file-watch events (Watcher reread/reparse failures)
//   - AUDIT: events logged via [Audit]
package logging
