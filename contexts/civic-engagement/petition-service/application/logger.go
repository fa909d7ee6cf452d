package application

import (
	"log/slog"

	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

const ModuleName = "civic-engagement/petition-service"

// ResolveLogger guarantees a non-nil logger for application/worker code paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// ResolveMetrics guarantees a non-nil metrics sink.
func ResolveMetrics(metrics ports.Metrics) ports.Metrics {
	if metrics == nil {
		return noopMetrics{}
	}
	return metrics
}

type noopMetrics struct{}

func (noopMetrics) ObserveSubmission(string) {}
func (noopMetrics) ObserveModerationAttempt(string) {}
func (noopMetrics) ObserveReconciliation(int, bool) {}
func (noopMetrics) ObserveWarehouseSync(bool) {}
