package rollout

import (
	"fmt"
	"strings"
	"time"
)

// ConnectivityError means one or more targets did not answer the
// pre-flight ping. Fleet-fatal: no action is taken on any node.
type ConnectivityError struct {
	Unreachable []string
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%d node(s) did not respond to ping: %s",
		len(e.Unreachable), strings.Join(e.Unreachable, ", "))
}

// ServiceRestartError means the service status check stayed false after
// the allotted local retries.
type ServiceRestartError struct {
	Node     string
	Service  string
	Attempts int
}

func (e *ServiceRestartError) Error() string {
	return fmt.Sprintf("service %s on %s failed to start after %d attempts",
		e.Service, e.Node, e.Attempts)
}

// RebootTimeoutError means the node never confirmed a smaller uptime
// within the polling deadline.
type RebootTimeoutError struct {
	Node    string
	Timeout time.Duration
}

func (e *RebootTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s to come back from reboot",
		e.Timeout, e.Node)
}

// RetryExhaustedError means a node used up its fleet-level retry budget.
// This always halts the entire run.
type RetryExhaustedError struct {
	Node     string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("gave up on %s after %d attempts: %v", e.Node, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}
