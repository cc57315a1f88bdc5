/*
Package log provides structured logging for flagstage using zerolog.

A single global zerolog.Logger is configured once by Init and shared by every
package. Packages derive a child logger tagged with their component name and
keep it for their lifetime:

	logger := log.WithComponent("scheduler")
	logger.Info().Str("decision", string(d)).Msg("reboot evaluated")

# Configuration

Init takes a Config with a Level (debug, info, warn, error), a JSONOutput
switch and an io.Writer. JSON output is meant for journald and log shippers;
console output is meant for an operator running the CLI in a terminal.

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

# Context Loggers

  - WithComponent: component=<name> on every line
  - WithNamespace: namespace=<ns> for configuration store operations

Before Init runs the global Logger is zerolog's zero value, which discards
output. Tests that assert on log output pass a bytes.Buffer as Output.
*/
package log
