/*
Package events is the in-process pub/sub bus of the flagstage daemon.

The reboot scheduler is driven by events rather than direct calls: the boot
sequence publishes EventBootCompleted, the alarm publishes EventRebootAlarm,
the escrow platform publishes EventEscrowCaptured and the network monitor
publishes EventNetworkAvailable. The scheduler subscribes once with
SubscribeTypes and handles them one at a time on its own goroutine, so no
two evaluations overlap.

Publish queues into a 100-event buffer. A Subscribe channel has its own
50-event buffer and misses events while that buffer is full; a slow
subscriber never holds up the others. A SubscribeTypes channel only sees
the listed types and queues them without bound, so a burst of other events
cannot push a trigger out.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Publish(events.NewEvent(events.EventRebootAlarm, "alarm fired", nil))
	ev := <-sub
*/
package events
