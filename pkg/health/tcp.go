package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker reports whether a TCP connection to Address can be opened.
// The network monitor uses it as the internet reachability probe.
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a TCP probe with a 5 second dial timeout
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Check dials Address once
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return newResult(start, false, fmt.Sprintf("connection failed: %v", err))
	}
	conn.Close()

	return newResult(start, true, fmt.Sprintf("TCP connection to %s successful", t.Address))
}

// Type returns the probe type
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout sets the dial timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
