// Package task implements the unit of execution the runner drives: Task,
// its ChangeID/ChangeRecord bookkeeping, the TaskRequest/JobRequest values
// a configurator's cooperative producer may yield, the ConfiguratorResult
// contract, and the AttributeManager that owns in-task attribute mutation
// and its revert-on-notapplied behavior (spec §4.5, §5).
package task
