package simpin

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cuemby/flagstage/pkg/log"
)

const (
	// SystemEnableKey is the OEM toggle for storing SIM PINs across an
	// unattended reboot
	SystemEnableKey = "config_allow_pin_storage_for_unattended_reboot"

	// CarrierEnableKey is the carrier config override for the same feature
	CarrierEnableKey = "store_sim_pin_for_unattended_reboot_bool"
)

// ResultCode is the telephony answer to a replay preparation request
type ResultCode int

const (
	ResultSuccess     ResultCode = 0
	ResultPinRequired ResultCode = 1
	ResultError       ResultCode = 2
)

func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "success"
	case ResultPinRequired:
		return "pin_required"
	case ResultError:
		return "error"
	default:
		return "unknown"
	}
}

// Subscription is one active SIM
type Subscription struct {
	ID        int  `json:"id"`
	PinLocked bool `json:"pin_locked"`
}

// Telephony is the device's SIM and carrier surface
type Telephony interface {
	// ActiveSubscriptions lists the SIMs currently in use
	ActiveSubscriptions(ctx context.Context) ([]Subscription, error)

	// SystemPinStorageEnabled reads the OEM toggle
	SystemPinStorageEnabled(ctx context.Context) (bool, error)

	// CarrierConfig returns the carrier config of a subscription. An empty
	// map means the carrier has no config.
	CarrierConfig(ctx context.Context, subscriptionID int) (map[string]any, error)

	// PrepareForUnattendedReboot arms SIM PIN replay for the next boot
	PrepareForUnattendedReboot(ctx context.Context) (ResultCode, error)
}

// Manager decides whether SIM PIN re-entry stands in the way of an
// unattended reboot
type Manager struct {
	telephony Telephony
	logger    zerolog.Logger
}

// NewManager creates a Manager over telephony
func NewManager(telephony Telephony) *Manager {
	return &Manager{
		telephony: telephony,
		logger:    log.WithComponent("simpin"),
	}
}

// Prepare returns true when no active SIM has a PIN lock or SIM PIN replay
// was armed successfully
func (m *Manager) Prepare(ctx context.Context) bool {
	locked, err := m.pinLockedSubscriptions(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list SIM subscriptions")
		return false
	}
	if len(locked) == 0 {
		return true
	}

	if !m.storageEnabled(ctx, locked) {
		m.logger.Warn().Msg("SIM PIN storage is disabled")
		return false
	}

	code, err := m.telephony.PrepareForUnattendedReboot(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to prepare SIM PIN replay")
		return false
	}
	if code != ResultSuccess {
		m.logger.Warn().Stringer("result", code).Msg("Failed to prepare SIM PIN replay")
		return false
	}

	m.logger.Info().Ints("subscriptions", locked).Msg("SIM PIN replay prepared")
	return true
}

func (m *Manager) pinLockedSubscriptions(ctx context.Context) ([]int, error) {
	subs, err := m.telephony.ActiveSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	var locked []int
	for _, sub := range subs {
		if sub.PinLocked {
			locked = append(locked, sub.ID)
		}
	}
	return locked, nil
}

// storageEnabled checks the OEM toggle, then every locked subscription's
// carrier config. Unreadable settings count as enabled; only an explicit
// false disables.
func (m *Manager) storageEnabled(ctx context.Context, locked []int) bool {
	enabled, err := m.telephony.SystemPinStorageEnabled(ctx)
	if err != nil {
		m.logger.Error().Err(err).Str("key", SystemEnableKey).Msg("Could not read system setting, assuming enabled")
		enabled = true
	}
	if !enabled {
		return false
	}

	for _, id := range locked {
		cfg, err := m.telephony.CarrierConfig(ctx, id)
		if err != nil {
			m.logger.Warn().Err(err).Int("subscription", id).Msg("Could not read carrier config")
			continue
		}
		if v, ok := cfg[CarrierEnableKey].(bool); ok && !v {
			m.logger.Warn().Int("subscription", id).Msg("The carrier disables SIM PIN storage")
			return false
		}
	}
	return true
}
