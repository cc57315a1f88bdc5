//go:build linux

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// systemReboot flushes filesystems and restarts the machine. The kernel
// restart call carries no reason, so it is only logged by the caller.
func systemReboot(reason string) error {
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot (%s): %w", reason, err)
	}
	return nil
}
