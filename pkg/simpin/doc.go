// Package simpin checks whether SIM PIN entry would block service after an
// unattended reboot, and arms SIM PIN replay when the OEM and every
// carrier involved allow it.
package simpin
