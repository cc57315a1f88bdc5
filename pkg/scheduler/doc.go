/*
Package scheduler decides when the device reboots to pick up staged flags.

The Scheduler is driven by three signals: boot completed (Start), reboot
alarm fired or network became available (TryRebootOrSchedule), and lock
credential captured into escrow (OnEscrowCaptured). Run delivers them from
the event broker one at a time.

# Readiness evaluation

TryRebootOrSchedule checks, in order, stopping at the first that fails:

 1. Throttle: time since boot is at least the window frequency.
    Otherwise reschedule.
 2. Lock state: a device without a screen lock reboots regularly, no
    escrow needed.
 3. Escrow: the platform reports the credential captured. Otherwise
    request preparation and reschedule. If the platform cannot answer, the
    captured latch decides.
 4. Network: validated connectivity. Otherwise ask to be woken when the
    network appears; no alarm is armed for this case.
 5. Window: the local hour lies in [StartHour, EndHour). Otherwise request
    preparation and reschedule.
 6. SIM PIN (when enabled): replay armed. Otherwise reschedule.
 7. Reboot through escrow. A failure code or error reschedules.

Every outcome other than a reboot leaves either an armed alarm or a
pending network request behind. The alarm always lands at StartHour:00,
FrequencyDays after the current local date (see NextRebootTime), and
re-arming replaces the previous alarm.

All device access goes through the Injector interface; package platform
provides the production implementation.
*/
package scheduler
