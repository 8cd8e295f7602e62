// Package observability provides OpenTelemetry metrics and tracing for the nova API.
package observability

import "strings"

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameRunsStarted         = "nova_matching_runs_started_total"
	MetricNameRunsFinished        = "nova_matching_runs_finished_total"
	MetricNameRunFailures         = "nova_matching_run_failures_total"
	MetricNameRunDuration         = "nova_matching_run_duration_seconds"
	MetricNameSolverDuration      = "nova_matching_solver_duration_seconds"
	MetricNameEdgesGenerated      = "nova_matching_edges_generated_total"
	MetricNamePairsCommitted      = "nova_matching_pairs_committed_total"
	MetricNameOverridesCarried    = "nova_matching_overrides_carried_total"
	MetricNameOverridesDropped    = "nova_matching_overrides_dropped_total"
	MetricNameRiverQueueDepth     = "nova_river_queue_depth"
	MetricNameActiveRuns          = "nova_matching_active_runs"
	MetricNameCacheHits           = "nova_cache_hits_total"
	MetricNameCacheMisses         = "nova_cache_misses_total"
	MetricNameRequestBodyTooLarge = "nova_request_body_too_large_total"
	MetricNameRateLimited         = "nova_requests_rate_limited_total"
)

// Attribute keys.
const (
	AttrTrigger = "trigger"
	AttrReason  = "reason"
	AttrStatus  = "status"
	AttrSource  = "source"
)

// AllowedRunTriggers for nova_matching_runs_started_total.
var AllowedRunTriggers = map[string]bool{
	"api":   true,
	"queue": true,
}

// AllowedRunStatuses for nova_matching_runs_finished_total and nova_matching_run_duration_seconds.
var AllowedRunStatuses = map[string]bool{
	"done":   true,
	"failed": true,
}

// AllowedFailureReasons for nova_matching_run_failures_total.
var AllowedFailureReasons = map[string]bool{
	"timeout":    true,
	"conflict":   true,
	"storage":    true,
	"validation": true,
	"stalled":    true,
	"canceled":   true,
}

// AllowedDroppedReasons for nova_matching_overrides_dropped_total.
var AllowedDroppedReasons = map[string]bool{
	"diamond_deleted": true,
}

// AllowedPairSources for nova_matching_pairs_committed_total (lowercased label values).
var AllowedPairSources = map[string]bool{
	"algo":    true,
	"premium": true,
	"manual":  true,
}

// AllowedCacheNames for nova_cache_hits_total and nova_cache_misses_total.
var AllowedCacheNames = map[string]bool{
	"run_pairs":  true,
	"latest_run": true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeStatus returns status if in AllowedRunStatuses, otherwise "other".
func NormalizeStatus(status string) string {
	if AllowedRunStatuses[status] {
		return status
	}

	return "other"
}

// NormalizeTrigger returns trigger if in AllowedRunTriggers, otherwise "other".
func NormalizeTrigger(trigger string) string {
	if AllowedRunTriggers[trigger] {
		return trigger
	}

	return "other"
}

// NormalizeSource lowercases a pair source and returns it if allowed, otherwise "other".
func NormalizeSource(source string) string {
	s := strings.ToLower(source)
	if AllowedPairSources[s] {
		return s
	}

	return "other"
}

// NormalizeCacheName returns name if in AllowedCacheNames, otherwise "other".
func NormalizeCacheName(name string) string {
	if AllowedCacheNames[name] {
		return name
	}

	return "other"
}
