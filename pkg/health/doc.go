/*
Package health provides the probes flagstage uses to look at the outside
world.

  - TCPChecker dials an address; the network monitor uses it to decide
    whether the internet is reachable at all.
  - HTTPChecker fetches a URL without following redirects; with a 204-only
    status range it tells a validated network from a captive portal.
  - ExecChecker runs a host command. Check maps exit status 0 to healthy;
    Run returns exit code and output, which the platform package uses to
    call device hooks (escrow preparation, lock state, telephony).

Status folds a stream of results into a verdict: one success is enough
to become healthy, Config.Retries consecutive failures to become unhealthy.
*/
package health
