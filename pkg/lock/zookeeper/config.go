package zookeeper

import "time"

const (
	// DefaultRootPath is the parent node of every lock node.
	DefaultRootPath = "/locks"

	// DefaultSessionTimeout is the session timeout negotiated with the ensemble.
	// Locks of a crashed holder disappear once it elapses.
	DefaultSessionTimeout = 10 * time.Second

	// DefaultConnectTimeout bounds how long NewLocker waits for a session.
	DefaultConnectTimeout = 10 * time.Second
)

// Config holds the ZooKeeper connection settings.
type Config struct {
	// Servers lists the ensemble members, e.g. ["zk1:2181", "zk2:2181"].
	Servers []string

	// SessionTimeout defaults to DefaultSessionTimeout.
	SessionTimeout time.Duration

	// ConnectTimeout defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// RootPath defaults to DefaultRootPath.
	RootPath string
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}

	if c.RootPath == "" {
		c.RootPath = DefaultRootPath
	}

	return c
}
