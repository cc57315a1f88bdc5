// Package deviceconfig is the property API used by staging, bootstrap and
// the CLI. It never returns store errors; they become false or an empty
// map, a log line and a flagstage_store_errors_total increment.
package deviceconfig
