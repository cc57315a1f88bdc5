/*
Package platform connects the reboot scheduler and the SIM PIN manager to
the host they run on.

Device implements scheduler.Injector and simpin.Telephony. Every
device-specific operation is a hook: a host command configured as an argv
whose exit code carries the answer.

	prepare_escrow <token>          exit 0 when the request was accepted
	escrow_status                   exit 0 prepared, 1 not prepared
	reboot_and_apply <reason> <ss>  only returns on failure
	reboot <reason>                 optional, defaults to reboot(2)
	device_secure                   exit 0 secure, 1 no screen lock
	telephony                       prints the SIM state document
	sim_pin_prepare                 exit code is the replay result code

The telephony document is JSON:

	{
	  "system_pin_storage_enabled": true,
	  "subscriptions": [
	    {"id": 2, "pin_locked": true, "carrier_config": {"store_sim_pin_for_unattended_reboot_bool": true}}
	  ]
	}

After an escrow preparation request succeeds, Device polls escrow_status
until the credential is captured or the escrow timeout passes, then calls
the capture callback once.

The reboot alarm and network availability requests do not call the
scheduler directly. They publish EventRebootAlarm and EventNetworkAvailable
on the event broker, which the scheduler consumes serially.

With DryRun set, both reboot paths log and return success without touching
the host.
*/
package platform
