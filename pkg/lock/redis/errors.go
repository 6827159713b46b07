package redis

import (
	"errors"
	"io"
	"net"
	"strings"
)

// Errors returned by Redis lock operations.
var (
	ErrNoRedisAddr        = errors.New("a Redis address is required")
	ErrClusterUnsupported = errors.New("redis cluster topology is not supported for distributed locking")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open: Redis is unavailable")
)

// IsConnectionError reports whether err means the server could not be reached,
// as opposed to a command-level failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		return true
	}

	errStr := err.Error()

	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "client is closed")
}
