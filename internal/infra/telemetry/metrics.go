package telemetry

import (
	"holmes/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObservePrerequisite(_ domain.PrerequisiteMetric) {}

func (n *NoopMetrics) ObserveStatusCache(_ domain.StatusCacheOutcome) {}

func (n *NoopMetrics) ObserveRemoteCall(_ domain.RemoteCallMetric) {}

func (n *NoopMetrics) SetToolsetsByStatus(_ map[domain.ToolsetStatus]int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
