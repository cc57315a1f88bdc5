package platform

import (
	"context"
	"fmt"

	"github.com/cuemby/flagstage/pkg/metrics"
)

// PrepareForUnattendedUpdate hands token to the escrow preparation hook and
// watches the status hook in the background. onCaptured runs once the
// platform reports the credential captured. A new request replaces the
// watch of the previous one.
func (d *Device) PrepareForUnattendedUpdate(ctx context.Context, token string, onCaptured func()) error {
	if len(d.cfg.Hooks.PrepareEscrow) == 0 {
		return fmt.Errorf("prepare escrow: %w", ErrHookNotConfigured)
	}

	out, err := d.hook(d.cfg.Hooks.PrepareEscrow).Run(ctx, token)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("prepare escrow hook exited with status %d", out.ExitCode)
	}

	d.watchEscrow(token, onCaptured)
	return nil
}

// IsPreparedForUnattendedUpdate runs the escrow status hook
func (d *Device) IsPreparedForUnattendedUpdate(ctx context.Context) (bool, error) {
	if len(d.cfg.Hooks.EscrowStatus) == 0 {
		return false, fmt.Errorf("escrow status: %w", ErrHookNotConfigured)
	}
	out, err := d.hook(d.cfg.Hooks.EscrowStatus).Run(ctx)
	if err != nil {
		return false, err
	}
	switch out.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("escrow status hook exited with status %d", out.ExitCode)
	}
}

func (d *Device) watchEscrow(token string, onCaptured func()) {
	if len(d.cfg.Hooks.EscrowStatus) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	if d.cancelWatch != nil {
		d.cancelWatch()
	}
	d.cancelWatch = cancel
	d.mu.Unlock()

	ticker := d.clock.NewTicker(d.cfg.EscrowPollInterval)
	deadline := d.clock.Now().Add(d.cfg.EscrowTimeout)
	logger := d.logger.With().Str("token", token).Logger()

	go func() {
		defer ticker.Stop()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				prepared, err := d.IsPreparedForUnattendedUpdate(ctx)
				if err != nil {
					logger.Debug().Err(err).Msg("Escrow status unavailable")
				}
				if prepared {
					if ctx.Err() != nil {
						return
					}
					metrics.EscrowPrepareTotal.WithLabelValues("captured").Inc()
					onCaptured()
					return
				}
				if !now.Before(deadline) {
					metrics.EscrowPrepareTotal.WithLabelValues("timeout").Inc()
					logger.Warn().Dur("timeout", d.cfg.EscrowTimeout).Msg("Credential not captured in time")
					return
				}
			}
		}
	}()
}
