package summary

import "github.com/giantswarm/muster-ensemble/internal/instance"

// Threshold is the --jobexitcode flag's value (spec §6 "Exit codes").
type Threshold string

const (
	ThresholdOK       Threshold = "ok"
	ThresholdError    Threshold = "error"
	ThresholdDegraded Threshold = "degraded"
	ThresholdNever    Threshold = "never"
)

// ExitCode implements spec §6's exit code table:
//
//	0  job completed and its status did not reach the --jobexitcode threshold
//	1  job completed but its status reached or exceeded the threshold
//	2  the job aborted unexpectedly (AbortPolicy fired, or a fatal error
//	   occurred before any task could run)
func ExitCode(status instance.Status, aborted bool, threshold Threshold) int {
	if aborted {
		return 2
	}
	if thresholdReached(status, threshold) {
		return 1
	}
	return 0
}

func thresholdReached(status instance.Status, threshold Threshold) bool {
	switch threshold {
	case ThresholdNever:
		return false
	case ThresholdOK:
		return status != instance.StatusOK
	case ThresholdDegraded:
		return status == instance.StatusDegraded || status == instance.StatusError || status == instance.StatusUnknown
	case ThresholdError, "":
		return status == instance.StatusError || status == instance.StatusUnknown
	default:
		return status == instance.StatusError || status == instance.StatusUnknown
	}
}
