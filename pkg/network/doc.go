/*
Package network tells the reboot scheduler whether the device is online.

A reboot is only attempted with validated connectivity: the reachability
probe (a TCP dial) must succeed and the validation probe (an HTTP request
expecting 204) must not be intercepted by a captive portal.

When the network is down the scheduler does not poll on its own. It calls
NotifyWhenAvailable once; the Monitor probes on its interval and calls back
a single time when the network validates.
*/
package network
