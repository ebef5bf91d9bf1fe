package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - метрики движка. Все методы безопасны для nil-получателя, чтобы в тестах метрики можно было не создавать.
type Metrics struct {
	ReportsIngested    *prometheus.CounterVec
	CellDeltas         *prometheus.CounterVec
	TickSkippedCells   prometheus.Counter
	ActiveSubscribers  prometheus.Gauge
	DroppedSubscribers prometheus.Counter
	DeliveryAttempts   *prometheus.CounterVec
	DeliveryLatency    prometheus.Histogram
	DispatchOutcomes   *prometheus.CounterVec
	StoreRetries       *prometheus.CounterVec
}

// New регистрирует все метрики в глобальном реестре prometheus
func New() *Metrics {
	return &Metrics{
		ReportsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "safesteps_reports_ingested_total",
			Help: "Incident reports accepted by category and severity",
		}, []string{"category", "severity"}),

		CellDeltas: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "safesteps_risk_cell_deltas_total",
			Help: "Risk cell deltas emitted by cause",
		}, []string{"cause"}), // cause: "report", "decay"

		TickSkippedCells: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safesteps_risk_tick_skipped_cells_total",
			Help: "Cells left at their last value because the decay tick could not recompute them",
		}),

		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "safesteps_active_subscriptions",
			Help: "Live risk surface subscriptions",
		}),

		DroppedSubscribers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safesteps_dropped_subscriptions_total",
			Help: "Subscriptions closed because their buffer overflowed",
		}),

		DeliveryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "safesteps_sos_delivery_attempts_total",
			Help: "SOS gateway send attempts by result",
		}, []string{"result"}), // result: "delivered", "transient", "permanent"

		DeliveryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "safesteps_sos_delivery_attempt_duration_seconds",
			Help:    "Duration of a single SOS gateway send",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		DispatchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "safesteps_sos_dispatch_outcomes_total",
			Help: "Finalized SOS dispatches by outcome",
		}, []string{"outcome"}), // outcome: "all_delivered", "partial", "all_failed"

		StoreRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "safesteps_store_retries_total",
			Help: "Retries of transient store failures by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) IncReport(category, severity string) {
	if m != nil {
		m.ReportsIngested.WithLabelValues(category, severity).Inc()
	}
}

func (m *Metrics) IncDelta(cause string) {
	if m != nil {
		m.CellDeltas.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) IncTickSkipped(n int) {
	if m != nil && n > 0 {
		m.TickSkippedCells.Add(float64(n))
	}
}

func (m *Metrics) SubscriberAdded() {
	if m != nil {
		m.ActiveSubscribers.Inc()
	}
}

func (m *Metrics) SubscriberRemoved(dropped bool) {
	if m != nil {
		m.ActiveSubscribers.Dec()
		if dropped {
			m.DroppedSubscribers.Inc()
		}
	}
}

// ObserveDelivery записывает результат и длительность одной попытки отправки
func (m *Metrics) ObserveDelivery(result string, d time.Duration) {
	if m != nil {
		m.DeliveryAttempts.WithLabelValues(result).Inc()
		m.DeliveryLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncDispatchOutcome(outcome string) {
	if m != nil {
		m.DispatchOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncStoreRetry(op string) {
	if m != nil {
		m.StoreRetries.WithLabelValues(op).Inc()
	}
}
