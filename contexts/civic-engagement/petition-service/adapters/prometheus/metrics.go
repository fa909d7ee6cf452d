package prometheusadapter

import (
	"strconv"

	"petitionhub/contexts/civic-engagement/petition-service/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	submissions        *prometheus.CounterVec
	moderationAttempts *prometheus.CounterVec
	reconciled         prometheus.Counter
	reconcileRuns      *prometheus.CounterVec
	warehouseSyncs     *prometheus.CounterVec
}

var _ ports.Metrics = (*Metrics)(nil)

// New registers the petition collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "petitionhub",
			Name:      "submissions_total",
			Help:      "Petition submissions by outcome.",
		}, []string{"outcome"}),
		moderationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "petitionhub",
			Name:      "moderation_attempts_total",
			Help:      "Moderation model calls by result.",
		}, []string{"result"}),
		reconciled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "petitionhub",
			Name:      "reconciled_petitions_total",
			Help:      "Petitions processed by reconciliation passes.",
		}),
		reconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "petitionhub",
			Name:      "reconciliation_runs_total",
			Help:      "Reconciliation passes by whether pending work remained.",
		}, []string{"has_more"}),
		warehouseSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "petitionhub",
			Name:      "warehouse_syncs_total",
			Help:      "Warehouse forwarding attempts by result.",
		}, []string{"ok"}),
	}
}

func (m *Metrics) ObserveSubmission(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveModerationAttempt(result string) {
	m.moderationAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveReconciliation(processed int, hasMore bool) {
	m.reconciled.Add(float64(processed))
	m.reconcileRuns.WithLabelValues(strconv.FormatBool(hasMore)).Inc()
}

func (m *Metrics) ObserveWarehouseSync(ok bool) {
	m.warehouseSyncs.WithLabelValues(strconv.FormatBool(ok)).Inc()
}
