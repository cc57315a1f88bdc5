//go:build !linux

package platform

import "fmt"

func systemReboot(reason string) error {
	return fmt.Errorf("reboot (%s): not supported on this platform, configure hooks.reboot", reason)
}
