/*
Package metrics exposes Prometheus metrics and health endpoints for the
flagstage daemon.

All metrics are package-level collectors registered with the default
registry at init and served by Handler on /metrics:

	flagstage_namespaces_total                  gauge
	flagstage_staged_values_total               gauge
	flagstage_store_operation_duration_seconds  histogram {op}
	flagstage_store_errors_total                counter   {op}
	flagstage_staged_apply_total                counter   {result}
	flagstage_bootstrap_values_total            counter   {result}
	flagstage_reboot_decisions_total            counter   {decision}
	flagstage_reboot_alarm_timestamp_seconds    gauge
	flagstage_escrow_prepare_total              counter   {result}
	flagstage_escrow_captured                   gauge
	flagstage_network_validated                 gauge

Timer wraps a start time for histogram observations:

	timer := metrics.NewTimer()
	values, err := store.GetValues(ns)
	timer.ObserveDurationVec(metrics.StoreOperationDuration, "get_values")

Collector samples the store gauges on an interval and keeps the "store"
health component current.

# Health

Components report health with RegisterComponent and UpdateComponent.
HealthHandler (/health) fails when any component is unhealthy.
ReadyHandler (/ready) fails until every critical component ("store" and
"scheduler" by default, see SetCriticalComponents) is registered and
healthy. LivenessHandler (/live) always succeeds while the process runs.
*/
package metrics
