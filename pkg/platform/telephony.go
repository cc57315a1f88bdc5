package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/flagstage/pkg/simpin"
)

// SimState is the document printed by the telephony hook
type SimState struct {
	// SystemPinStorage is the OEM toggle; absent means unknown
	SystemPinStorage *bool             `json:"system_pin_storage_enabled,omitempty"`
	Subscriptions    []SimSubscription `json:"subscriptions"`
}

// SimSubscription is one active SIM with its carrier config
type SimSubscription struct {
	simpin.Subscription
	CarrierConfig map[string]any `json:"carrier_config,omitempty"`
}

var errSystemToggleUnknown = errors.New("system SIM PIN storage toggle not reported")

func (d *Device) simState(ctx context.Context) (SimState, error) {
	if len(d.cfg.Hooks.Telephony) == 0 {
		// No telephony on this device
		return SimState{}, nil
	}
	out, err := d.hook(d.cfg.Hooks.Telephony).Run(ctx)
	if err != nil {
		return SimState{}, err
	}
	if out.ExitCode != 0 {
		return SimState{}, fmt.Errorf("telephony hook exited with status %d", out.ExitCode)
	}

	var state SimState
	if err := json.Unmarshal(out.Stdout, &state); err != nil {
		return SimState{}, fmt.Errorf("failed to decode telephony state: %w", err)
	}
	return state, nil
}

// ActiveSubscriptions implements simpin.Telephony
func (d *Device) ActiveSubscriptions(ctx context.Context) ([]simpin.Subscription, error) {
	state, err := d.simState(ctx)
	if err != nil {
		return nil, err
	}
	subs := make([]simpin.Subscription, 0, len(state.Subscriptions))
	for _, s := range state.Subscriptions {
		subs = append(subs, s.Subscription)
	}
	return subs, nil
}

// SystemPinStorageEnabled implements simpin.Telephony. The configured
// override wins over the telephony document.
func (d *Device) SystemPinStorageEnabled(ctx context.Context) (bool, error) {
	if d.cfg.SystemPinStorage != nil {
		return *d.cfg.SystemPinStorage, nil
	}
	state, err := d.simState(ctx)
	if err != nil {
		return false, err
	}
	if state.SystemPinStorage == nil {
		return false, errSystemToggleUnknown
	}
	return *state.SystemPinStorage, nil
}

// CarrierConfig implements simpin.Telephony
func (d *Device) CarrierConfig(ctx context.Context, subscriptionID int) (map[string]any, error) {
	state, err := d.simState(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range state.Subscriptions {
		if s.ID == subscriptionID {
			return s.CarrierConfig, nil
		}
	}
	return map[string]any{}, nil
}

// PrepareForUnattendedReboot implements simpin.Telephony; the hook's exit
// code is the result code
func (d *Device) PrepareForUnattendedReboot(ctx context.Context) (simpin.ResultCode, error) {
	if len(d.cfg.Hooks.SimPinPrepare) == 0 {
		return simpin.ResultError, fmt.Errorf("sim pin prepare: %w", ErrHookNotConfigured)
	}
	out, err := d.hook(d.cfg.Hooks.SimPinPrepare).Run(ctx)
	if err != nil {
		return simpin.ResultError, err
	}
	return simpin.ResultCode(out.ExitCode), nil
}
