package domain

import "time"

// PrerequisiteMetric describes one prerequisite check.
type PrerequisiteMetric struct {
	Toolset  string
	Kind     PrerequisiteKind
	Passed   bool
	Duration time.Duration
}

// StatusCacheOutcome labels how a status refresh used the persistent cache.
type StatusCacheOutcome string

const (
	StatusCacheHit    StatusCacheOutcome = "hit"
	StatusCacheStale  StatusCacheOutcome = "stale"
	StatusCacheForced StatusCacheOutcome = "forced"
)

// RemoteCallMetric describes one call through the remote execution bridge.
type RemoteCallMetric struct {
	Endpoint string
	Method   string
	Status   ToolResultStatus
	Duration time.Duration
}

// Metrics records engine observations.
type Metrics interface {
	ObservePrerequisite(metric PrerequisiteMetric)
	ObserveStatusCache(outcome StatusCacheOutcome)
	ObserveRemoteCall(metric RemoteCallMetric)
	SetToolsetsByStatus(counts map[ToolsetStatus]int)
}
