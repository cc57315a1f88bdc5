/*
Package types defines the shared vocabulary of flagstage.

# Staged names

A value staged for the next boot is stored in the NamespaceRebootStaging
namespace under a key that encodes its real destination:

	<namespace>*<key>

StagedName builds such a key and ParseStagedName splits it. Both reject an
empty namespace or key and any part that itself contains "*", so a staged
name always decodes to exactly one destination.

# Reboot window

RebootWindow holds the local hours during which an unattended reboot may
start, and the minimum number of days between reboots. EndHour is
exclusive. A window whose StartHour is later than its EndHour wraps past
midnight.

# Decisions

Decision names the outcome of one reboot readiness evaluation. The
scheduler reports decisions through metrics and events; only
DecisionRebootNow and DecisionFallbackRegularReboot take the device down.
*/
package types
