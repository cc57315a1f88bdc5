package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// NamespaceRebootStaging holds values that take effect on the next boot
	NamespaceRebootStaging = "staged"

	// StagingDelimiter separates target namespace and key in a staged name
	StagingDelimiter = "*"
)

// Reboot reason tags reported to downstream diagnostics
const (
	RebootReason        = "unattended,flaginfra"
	RegularRebootReason = "unattended,flaginfra,regular"
)

// ErrInvalidStagedName is returned when a staged name cannot be encoded or decoded
var ErrInvalidStagedName = errors.New("invalid staged name")

// ConfigEntry is a single namespace/key/value row
type ConfigEntry struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// StagedName encodes a target namespace and key as "<namespace>*<key>".
// Neither part may be empty or contain the delimiter.
func StagedName(namespace, key string) (string, error) {
	if namespace == "" || key == "" {
		return "", fmt.Errorf("%w: namespace and key must be non-empty", ErrInvalidStagedName)
	}
	if strings.Contains(namespace, StagingDelimiter) {
		return "", fmt.Errorf("%w: namespace %q contains %q", ErrInvalidStagedName, namespace, StagingDelimiter)
	}
	if strings.Contains(key, StagingDelimiter) {
		return "", fmt.Errorf("%w: key %q contains %q", ErrInvalidStagedName, key, StagingDelimiter)
	}
	return namespace + StagingDelimiter + key, nil
}

// ParseStagedName splits a staged name into target namespace and key
func ParseStagedName(name string) (namespace, key string, err error) {
	parts := strings.Split(name, StagingDelimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q does not follow namespace%skey", ErrInvalidStagedName, name, StagingDelimiter)
	}
	return parts[0], parts[1], nil
}

// RebootWindow bounds when unattended reboots may happen.
// StartHour and EndHour are local clock hours, EndHour exclusive.
type RebootWindow struct {
	StartHour     int `yaml:"start_hour"`
	EndHour       int `yaml:"end_hour"`
	FrequencyDays int `yaml:"frequency_days"`
}

// DefaultRebootWindow reboots at most every 2 days between 01:00 and 05:00
func DefaultRebootWindow() RebootWindow {
	return RebootWindow{
		StartHour:     1,
		EndHour:       5,
		FrequencyDays: 2,
	}
}

// Validate checks hour ranges and frequency
func (w RebootWindow) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 {
		return fmt.Errorf("start hour %d out of range 0-23", w.StartHour)
	}
	if w.EndHour < 0 || w.EndHour > 23 {
		return fmt.Errorf("end hour %d out of range 0-23", w.EndHour)
	}
	if w.StartHour == w.EndHour {
		return fmt.Errorf("start hour and end hour must differ (both %d)", w.StartHour)
	}
	if w.FrequencyDays < 1 {
		return fmt.Errorf("frequency must be at least 1 day, got %d", w.FrequencyDays)
	}
	return nil
}

// Contains reports whether the local hour falls inside [StartHour, EndHour).
// A window with StartHour > EndHour wraps past midnight.
func (w RebootWindow) Contains(hour int) bool {
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// Frequency returns the minimum time between unattended reboots
func (w RebootWindow) Frequency() time.Duration {
	return time.Duration(w.FrequencyDays) * 24 * time.Hour
}

// Decision is the outcome of a reboot readiness evaluation
type Decision string

const (
	DecisionRebootNow               Decision = "reboot_now"
	DecisionRescheduleAfterPrepare  Decision = "reschedule_after_prepare"
	DecisionRescheduleAfterNetwork  Decision = "reschedule_after_network"
	DecisionRescheduleOutsideWindow Decision = "reschedule_outside_window"
	DecisionRescheduleThrottled     Decision = "reschedule_throttled"
	DecisionRescheduleSimPin        Decision = "reschedule_sim_pin"
	DecisionRescheduleRebootFailed  Decision = "reschedule_reboot_failed"
	DecisionFallbackRegularReboot   Decision = "fallback_regular_reboot"
)

// Rebooting reports whether the decision ends with the device going down
func (d Decision) Rebooting() bool {
	return d == DecisionRebootNow || d == DecisionFallbackRegularReboot
}
