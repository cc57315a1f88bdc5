package health

import (
	"context"
	"time"
)

// CheckType represents the type of probe
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeExec CheckType = "exec"
)

// Result represents the outcome of a probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

func newResult(start time.Time, healthy bool, message string) Result {
	return Result{
		Healthy:   healthy,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Checker is implemented by every probe
type Checker interface {
	// Check runs the probe once
	Check(ctx context.Context) Result

	// Type returns the type of probe
	Type() CheckType
}

// Config controls how often a probe runs and how many failures in a row
// it takes to flip to unhealthy
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Retries  int
}

// DefaultConfig returns the defaults used for network probing
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
		Retries:  1,
	}
}

// Status folds successive results into a healthy/unhealthy verdict
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result

	// Healthy starts false: nothing is assumed before the first probe
	Healthy bool
}

// NewStatus creates an empty Status
func NewStatus() *Status {
	return &Status{}
}

// Update records result. One success makes the status healthy; Retries
// failures in a row make it unhealthy.
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	retries := config.Retries
	if retries < 1 {
		retries = 1
	}
	if s.ConsecutiveFailures >= retries {
		s.Healthy = false
	}
}
