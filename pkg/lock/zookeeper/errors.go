package zookeeper

import "errors"

// Errors returned by ZooKeeper lock operations.
var (
	ErrNoServers       = errors.New("at least one ZooKeeper server is required")
	ErrInvalidRootPath = errors.New("root path must be an absolute ZooKeeper path")
	ErrInvalidKey      = errors.New("lock key must not contain '/'")
	ErrSessionTimeout  = errors.New("timed out waiting for a ZooKeeper session")
	ErrAuthFailed      = errors.New("ZooKeeper authentication failed")
	ErrConnClosed      = errors.New("ZooKeeper connection closed before a session was established")

	ErrCircuitBreakerOpen = errors.New("circuit breaker open: ZooKeeper is unavailable")
)
