package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spectrum_club"

type Metrics struct {
	OccurrencesMaterialized *prometheus.CounterVec
	OccurrencesCancelled    prometheus.Counter
	AttendanceMarks         *prometheus.CounterVec
	EnrollmentsExhausted    prometheus.Counter
	LedgerConflicts         *prometheus.CounterVec
	CreditHoursConsumed     prometheus.Counter
	ProvisioningEvents      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OccurrencesMaterialized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_materialized_total",
			Help:      "occurrences touched by materialization, by result",
		}, []string{"result"}),
		OccurrencesCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_cancelled_total",
			Help:      "occurrences soft-cancelled",
		}),
		AttendanceMarks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_marks_total",
			Help:      "attendance transitions, by action",
		}, []string{"action"}),
		EnrollmentsExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_exhausted_total",
			Help:      "enrollments that reached zero sessions",
		}),
		LedgerConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_conflicts_total",
			Help:      "retryable conflicts returned to callers, by ledger",
		}, []string{"ledger"}),
		CreditHoursConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_hours_consumed_total",
			Help:      "prepaid hours debited from credit buckets",
		}),
		ProvisioningEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisioning_events_total",
			Help:      "payment-succeeded events, by outcome",
		}, []string{"outcome"}),
	}
}

// NewNop - метрики на отдельном реестре, для тестов и одноразовых команд.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
