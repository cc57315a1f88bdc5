package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	NamespacesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flagstage_namespaces_total",
			Help: "Number of namespaces holding at least one value",
		},
	)

	StagedValuesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flagstage_staged_values_total",
			Help: "Number of values waiting in the staged namespace",
		},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flagstage_store_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagstage_store_errors_total",
			Help: "Total number of failed store operations by operation",
		},
		[]string{"op"},
	)

	// Staging metrics
	StagedApplyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagstage_staged_apply_total",
			Help: "Staged values processed at boot by result (applied, malformed, failed)",
		},
		[]string{"result"},
	)

	BootstrapValuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagstage_bootstrap_values_total",
			Help: "Bootstrap file lines processed by result (applied, invalid)",
		},
		[]string{"result"},
	)

	// Reboot scheduler metrics
	RebootDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagstage_reboot_decisions_total",
			Help: "Total number of reboot readiness evaluations by decision",
		},
		[]string{"decision"},
	)

	RebootAlarmTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flagstage_reboot_alarm_timestamp_seconds",
			Help: "Unix time of the pending reboot alarm (0 = none)",
		},
	)

	EscrowPrepareTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagstage_escrow_prepare_total",
			Help: "Total number of credential escrow preparations by result",
		},
		[]string{"result"},
	)

	EscrowCaptured = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flagstage_escrow_captured",
			Help: "Whether the device credential has been captured for unattended reboot (1 = captured)",
		},
	)

	NetworkValidated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flagstage_network_validated",
			Help: "Whether the last network probe found validated internet connectivity (1 = validated)",
		},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagstage_events_dropped_total",
			Help: "Events not delivered to a subscriber whose buffer was full",
		},
		[]string{"type"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(NamespacesTotal)
	prometheus.MustRegister(StagedValuesTotal)
	prometheus.MustRegister(StoreOperationDuration)
	prometheus.MustRegister(StoreErrorsTotal)
	prometheus.MustRegister(StagedApplyTotal)
	prometheus.MustRegister(BootstrapValuesTotal)
	prometheus.MustRegister(RebootDecisionsTotal)
	prometheus.MustRegister(RebootAlarmTimestamp)
	prometheus.MustRegister(EscrowPrepareTotal)
	prometheus.MustRegister(EscrowCaptured)
	prometheus.MustRegister(NetworkValidated)
	prometheus.MustRegister(EventsDroppedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// BoolGauge converts a flag to the 0/1 convention used by the gauges above
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
