/*
Package manager wires the flagstage daemon together.

A Manager opens the configuration store and builds, in order:

  - the event broker shared by every component
  - the deviceconfig.Service over the store
  - the metrics collector sampling namespace and staged value counts
  - the network monitor with its reachability and validation probes
  - the platform.Device implementing the scheduler's injector
  - the reboot scheduler, when reboot.enabled is set

Start launches the scheduler loop and, when metrics.addr is set, an HTTP
server exposing /metrics, /health, /ready and /live.

# Boot

OnBootCompleted is called once per boot. It applies the bootstrap defaults
file if it has not been processed yet, applies staged values into their
target namespaces and then publishes EventBootCompleted. The scheduler
reacts to that event by requesting escrow preparation and arming the first
reboot alarm.

# Snapshots

TakeSnapshot copies every namespace into a Snapshot that Persist writes as
JSON. Restore upserts a snapshot back into any store, which is how the CLI
exports and imports configuration and how the migrate tool moves data
between backends.
*/
package manager
