// Package alarm provides the single wall-clock alarm that drives unattended
// reboots. Re-arming replaces the pending alarm, so reschedules never stack.
package alarm
